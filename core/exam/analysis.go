package exam

import (
	"math"
	"sort"
	"strconv"
)

// Item analysis constants.
const (
	GroupFraction           = 0.27 // upper/lower groups for discrimination
	MinPointBiserialN       = 10   // below this sample size the point-biserial is reported as 0
	DistractorFloor         = 0.05 // distractors chosen by fewer are non functional
	StartingQualityScore    = 100
	MinSampleForQuality     = 10
	easyThreshold           = 0.9
	hardThreshold           = 0.2
	poorDiscrimination      = 0.2
	excellentDiscrimination = 0.4
	lowPointBiserial        = 0.2
)

// Distractor effectiveness
const (
	DistractorGood          = "good"
	DistractorWeak          = "weak"
	DistractorNonFunctional = "non_functional"
)

// Quality recommendations
const (
	RecommendKeep        = "keep"
	RecommendRevise      = "revise"
	RecommendRetire      = "retire"
	RecommendNeedsReview = "needs_review"
)

// Quality flags
const (
	FlagTooEasy                 = "too_easy"
	FlagTooHard                 = "too_hard"
	FlagPoorDiscrimination      = "poor_discrimination"
	FlagNegativeDiscrimination  = "negative_discrimination"
	FlagLowPointBiserial        = "low_point_biserial"
	FlagNonFunctionalDistractor = "non_functional_distractor"
	FlagInsufficientSample      = "insufficient_sample"
)

type (
	// ItemResponse is one student's answer to an item, with the student's total exam score.
	ItemResponse struct {
		StudentID  string
		Selected   int // option index, -1 when omitted
		Correct    bool
		TotalScore float64
	}

	DistractorStat struct {
		Option        int     `json:"option"`
		Count         int     `json:"count"`
		SelectionRate float64 `json:"selection_rate"`
		UpperCount    int     `json:"upper_count"`
		LowerCount    int     `json:"lower_count"`
		Effectiveness string  `json:"effectiveness"`
	}

	Quality struct {
		Score          int      `json:"score"`
		Flags          []string `json:"flags"`
		Recommendation string   `json:"recommendation"`
	}

	ItemAnalysis struct {
		QuestionID     string           `json:"question_id"`
		Position       int              `json:"position"`
		Responses      int              `json:"responses"`
		Difficulty     float64          `json:"difficulty"`
		Discrimination float64          `json:"discrimination"`
		PointBiserial  float64          `json:"point_biserial"`
		Distractors    []DistractorStat `json:"distractors"`
		Quality        Quality          `json:"quality"`
	}
)

// DifficultyIndex is the proportion of correct answers (p-value). It is 0 when nobody answered.
func DifficultyIndex(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// groupSize is the number of respondents in each of the upper and lower groups.
func groupSize(n int) int {
	return int(math.Round(float64(n) * GroupFraction))
}

// splitGroups sorts responses by total score (highest first) and returns the upper and lower 27%.
func splitGroups(responses []ItemResponse) (upper, lower []ItemResponse) {
	sorted := make([]ItemResponse, len(responses))
	copy(sorted, responses)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TotalScore > sorted[j].TotalScore })

	size := groupSize(len(sorted))
	if size == 0 {
		return nil, nil
	}
	return sorted[:size], sorted[len(sorted)-size:]
}

func correctRate(group []ItemResponse) float64 {
	var correct int
	for _, r := range group {
		if r.Correct {
			correct++
		}
	}
	return DifficultyIndex(correct, len(group))
}

// DiscriminationIndex is the difference between the correct rates of the upper and lower 27% groups
// (ranked by total score). It lies in [-1, 1] and is 0 when a group is empty.
func DiscriminationIndex(responses []ItemResponse) float64 {
	upper, lower := splitGroups(responses)
	if len(upper) == 0 || len(lower) == 0 {
		return 0
	}
	return correctRate(upper) - correctRate(lower)
}

// PointBiserial correlates item correctness with the total score:
// (Mp - Mq) / St * sqrt(p*q), St being the population standard deviation of total scores.
// Samples smaller than MinPointBiserialN yield 0.
func PointBiserial(responses []ItemResponse) float64 {
	n := len(responses)
	if n < MinPointBiserialN {
		return 0
	}

	scores := make([]float64, 0, n)
	var sumP, sumQ float64
	var nP int
	for _, r := range responses {
		scores = append(scores, r.TotalScore)
		if r.Correct {
			sumP += r.TotalScore
			nP++
		} else {
			sumQ += r.TotalScore
		}
	}
	nQ := n - nP
	st := StdDev(scores)
	if st == 0 || nP == 0 || nQ == 0 {
		return 0
	}

	p := float64(nP) / float64(n)
	q := 1 - p
	mp := sumP / float64(nP)
	mq := sumQ / float64(nQ)
	return (mp - mq) / st * math.Sqrt(p*q)
}

// Distractors reports, for each wrong option, how often it was chosen overall and by the upper and lower
// groups. A distractor chosen by less than 5% is non functional; one that attracts more of the lower group
// than of the upper group is good; any other is weak.
func Distractors(responses []ItemResponse, optionCount, correctOption int) []DistractorStat {
	upper, lower := splitGroups(responses)
	countIn := func(group []ItemResponse, opt int) int {
		var c int
		for _, r := range group {
			if r.Selected == opt {
				c++
			}
		}
		return c
	}

	stats := make([]DistractorStat, 0, optionCount)
	for opt := 0; opt < optionCount; opt++ {
		if opt == correctOption {
			continue
		}
		st := DistractorStat{
			Option:     opt,
			Count:      countIn(responses, opt),
			UpperCount: countIn(upper, opt),
			LowerCount: countIn(lower, opt),
		}
		st.SelectionRate = DifficultyIndex(st.Count, len(responses))
		switch {
		case st.SelectionRate < DistractorFloor:
			st.Effectiveness = DistractorNonFunctional
		case st.LowerCount > st.UpperCount:
			st.Effectiveness = DistractorGood
		default:
			st.Effectiveness = DistractorWeak
		}
		stats = append(stats, st)
	}
	return stats
}

// QualityScore starts at 100 and adds or removes fixed amounts per flag, clamped to [0, 100]:
// too easy (p > 0.9) or too hard (p < 0.2) -20, poor discrimination (D < 0.2) -25 or negative (D < 0) -40,
// low point-biserial (< 0.2) -15, each non functional distractor -5, excellent discrimination (D >= 0.4) +10,
// moderate difficulty (0.3 <= p <= 0.7) +5.
func QualityScore(n int, difficulty, discrimination, pointBiserial float64, distractors []DistractorStat) Quality {
	score := StartingQualityScore
	flags := make([]string, 0, 4)

	switch {
	case difficulty > easyThreshold:
		score -= 20
		flags = append(flags, FlagTooEasy)
	case difficulty < hardThreshold:
		score -= 20
		flags = append(flags, FlagTooHard)
	}

	switch {
	case discrimination < 0:
		score -= 40
		flags = append(flags, FlagNegativeDiscrimination)
	case discrimination < poorDiscrimination:
		score -= 25
		flags = append(flags, FlagPoorDiscrimination)
	case discrimination >= excellentDiscrimination:
		score += 10
	}

	if pointBiserial < lowPointBiserial {
		score -= 15
		flags = append(flags, FlagLowPointBiserial)
	}

	for _, d := range distractors {
		if d.Effectiveness == DistractorNonFunctional {
			score -= 5
			flags = append(flags, FlagNonFunctionalDistractor)
		}
	}

	if difficulty >= 0.3 && difficulty <= 0.7 {
		score += 5
	}

	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	q := Quality{Score: score, Flags: flags}
	switch {
	case n < MinSampleForQuality:
		q.Recommendation = RecommendNeedsReview
		q.Flags = append(q.Flags, FlagInsufficientSample)
	case discrimination < 0:
		q.Recommendation = RecommendRetire
	case score >= 80:
		q.Recommendation = RecommendKeep
	case score >= 50:
		q.Recommendation = RecommendRevise
	default:
		q.Recommendation = RecommendRetire
	}
	return q
}

// AnalyzeItem runs the full item analysis of a question.
func AnalyzeItem(q Question, responses []ItemResponse) ItemAnalysis {
	var correct int
	for _, r := range responses {
		if r.Correct {
			correct++
		}
	}

	ia := ItemAnalysis{
		QuestionID:     q.ID,
		Position:       q.Position,
		Responses:      len(responses),
		Difficulty:     DifficultyIndex(correct, len(responses)),
		Discrimination: DiscriminationIndex(responses),
		PointBiserial:  PointBiserial(responses),
		Distractors:    Distractors(responses, len(q.Options), q.CorrectOption),
	}
	ia.Quality = QualityScore(ia.Responses, ia.Difficulty, ia.Discrimination, ia.PointBiserial, ia.Distractors)
	return ia
}

// Descriptive statistics

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev is the population standard deviation.
func StdDev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(n))
}

// Round2 rounds to two decimals for presentation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func itoa(i int) string { return strconv.Itoa(i) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
