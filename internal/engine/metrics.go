package engine

import "math"

// forecastMetrics compares actual and predicted values. Non-finite values are
// left out because they cannot be encoded as JSON.
func forecastMetrics(actual, pred []float64) map[string]float64 {
	n := min(len(actual), len(pred))
	if n == 0 {
		return map[string]float64{}
	}

	var sqErr, absErr, smape float64
	smapeN := 0
	for i := range n {
		diff := pred[i] - actual[i]
		sqErr += diff * diff
		absErr += math.Abs(diff)
		if denom := math.Abs(actual[i]) + math.Abs(pred[i]); denom > 0 {
			smape += 2 * math.Abs(diff) / denom
			smapeN++
		}
	}

	out := map[string]float64{}
	put(out, "RMSE", math.Sqrt(sqErr/float64(n)))
	put(out, "MAE", absErr/float64(n))
	if smapeN > 0 {
		put(out, "sMAPE", 100*smape/float64(smapeN))
	}
	return out
}

// alarmMetrics reports the alarm rate and, when labels are given, point
// wise precision, recall and F1.
func alarmMetrics(alarms []bool, labels []float64) map[string]float64 {
	out := map[string]float64{}
	if len(alarms) == 0 {
		return out
	}

	fired := 0
	for _, a := range alarms {
		if a {
			fired++
		}
	}
	put(out, "AlarmRate", float64(fired)/float64(len(alarms)))

	if labels == nil {
		return out
	}

	var tp, fp, fn float64
	for i := range min(len(alarms), len(labels)) {
		truth := labels[i] != 0
		switch {
		case alarms[i] && truth:
			tp++
		case alarms[i]:
			fp++
		case truth:
			fn++
		}
	}

	precision, recall := 0.0, 0.0
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	put(out, "Precision", precision)
	put(out, "Recall", recall)
	put(out, "F1", f1)
	return out
}

func put(m map[string]float64, key string, v float64) {
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		m[key] = v
	}
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
