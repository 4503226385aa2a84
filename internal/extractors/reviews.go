package extractors

import (
	"context"
	"sort"
	"strings"

	"github.com/jaisveenkaur/insiteforge/internal/models"
)

// ReviewsExtractor computes rating trends and recurring complaint
// themes. Text-derived sentiment stays optional: it only sharpens
// theme detection, the numeric rating always drives the metrics.
type ReviewsExtractor struct{}

func (e *ReviewsExtractor) Kind() models.SourceKind { return models.SourceReviews }

// stopwords filters trend terms pulled from raw review text.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "was": true, "are": true, "were": true, "it": true, "its": true,
	"this": true, "that": true, "with": true, "for": true, "not": true,
	"too": true, "very": true, "i": true, "my": true, "of": true, "to": true,
	"in": true, "on": true, "so": true, "after": true, "product": true,
}

// themeKeywords maps review-text keywords to canonical complaint themes.
var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{"battery", []string{"battery"}},
	{"fit", []string{"fit", "comfort"}},
	{"delivery", []string{"delivery", "shipping"}},
	{"product quality", []string{"quality", "defect", "broke", "broken"}},
}

func (e *ReviewsExtractor) Extract(ctx context.Context, ds *models.CanonicalDataset, opts Options) (*SignalSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := &SignalSet{Kind: models.SourceReviews}
	if !ds.SourcePresent(models.SourceReviews) || len(ds.Reviews) == 0 {
		return set, nil
	}

	negOnly := opts.Constraints.NegativeReviewsOnly

	var used []models.Review
	for _, r := range ds.Reviews {
		if negOnly && r.Rating > 2 {
			continue
		}
		used = append(used, r)
	}

	signals := &ReviewSignals{ReviewsUsed: len(used)}
	if len(used) == 0 {
		set.OK = true
		set.Reviews = signals
		return set, nil
	}

	ratings := make([]float64, 0, len(used))
	negative := 0
	for _, r := range used {
		ratings = append(ratings, r.Rating)
		if r.Rating <= 2 {
			negative++
		}
	}
	signals.AvgRating = mean(ratings)
	signals.NegativeSharePct = float64(negative) / float64(len(used)) * 100
	signals.TrendDelta = trendDelta(used)
	signals.TopComplaints = topComplaints(used, negOnly)
	signals.LowConfidence = len(used) < opts.Thresholds.MinSampleReviews

	st := ds.Statuses[models.SourceReviews]
	if rate := st.DroppedRate(); rate > opts.Thresholds.NoisyRatingRatio {
		set.NoiseFlags = append(set.NoiseFlags,
			"Reviews are noisy: a high share of records had missing or out-of-range ratings.")
	}

	set.OK = true
	set.Reviews = signals
	return set, nil
}

// trendDelta compares the most recent third of timestamped reviews
// against the overall average. Reviews without timestamps yield 0,
// which renders as a flat trend.
func trendDelta(reviews []models.Review) float64 {
	var stamped []models.Review
	for _, r := range reviews {
		if r.Timestamp != nil {
			stamped = append(stamped, r)
		}
	}
	if len(stamped) < 3 {
		return 0
	}
	sort.Slice(stamped, func(i, j int) bool {
		return stamped[i].Timestamp.Before(*stamped[j].Timestamp)
	})
	all := make([]float64, len(stamped))
	for i, r := range stamped {
		all[i] = r.Rating
	}
	window := len(stamped) / 3
	if window == 0 {
		window = 1
	}
	recent := all[len(all)-window:]
	return mean(recent) - mean(all)
}

// topComplaints ranks complaint themes across reviews. Explicit theme
// tags win; otherwise themes are inferred from keywords in the text,
// and remaining low-rating text contributes stopword-filtered terms.
func topComplaints(reviews []models.Review, negOnly bool) []ThemeCount {
	counter := make(map[string]int)
	for _, r := range reviews {
		if negOnly && r.Rating > 2 {
			continue
		}
		themes := r.Themes
		if len(themes) == 0 {
			themes = inferThemes(r.Text)
		}
		if len(themes) == 0 && r.Rating <= 2 {
			themes = frequentTerms(r.Text)
		}
		for _, theme := range themes {
			t := strings.ToLower(strings.TrimSpace(theme))
			if t != "" {
				counter[t]++
			}
		}
	}
	return topN(counter, 5)
}

func inferThemes(text string) []string {
	lower := strings.ToLower(text)
	var themes []string
	for _, tk := range themeKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				themes = append(themes, tk.theme)
				break
			}
		}
	}
	return themes
}

func frequentTerms(text string) []string {
	var terms []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) > 3 && !stopwords[word] {
			terms = append(terms, word)
		}
	}
	return terms
}

// topN returns the n highest counts, ties broken alphabetically so
// output is deterministic.
func topN(counter map[string]int, n int) []ThemeCount {
	out := make([]ThemeCount, 0, len(counter))
	for theme, count := range counter {
		out = append(out, ThemeCount{Theme: theme, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Theme < out[j].Theme
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
