package dialog

var positiveWords = []string{
	"great", "good", "thanks", "thank you", "happy", "perfect", "awesome", "excellent",
	"love", "appreciate", "wonderful", "helpful", "nice", "glad", "fantastic",
}

var negativeWords = []string{
	"terrible", "awful", "angry", "frustrated", "hate", "bad", "worst", "annoyed", "upset",
	"ridiculous", "horrible", "useless", "disappointed", "furious", "waste",
}

// 情绪趋势判定阈值
const trendDelta = 0.1

// scoreSentiment 词典打分，结果在 [-1,1]
func scoreSentiment(p phraseSet) float64 {
	pos := float64(p.count(positiveWords))
	neg := float64(p.count(negativeWords))
	if pos+neg == 0 {
		return 0
	}
	return clamp((pos-neg)/(pos+neg), -1, 1)
}

// sentimentTrend 比较窗口前后两半的平均情绪
func sentimentTrend(values []float64) (float64, SentimentTrend) {
	if len(values) == 0 {
		return 0, TrendStable
	}
	avg := mean(values)
	if len(values) < 2 {
		return avg, TrendStable
	}
	half := len(values) / 2
	delta := mean(values[len(values)-half:]) - mean(values[:half])
	switch {
	case delta > trendDelta:
		return avg, TrendImproving
	case delta < -trendDelta:
		return avg, TrendDeclining
	default:
		return avg, TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
