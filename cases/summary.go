package cases

import (
	"fmt"
	"sort"
	"strings"
)

// Summarize synthesizes a markdown overview of a set of similar cases.
func Summarize(records []CaseRecord) string {
	if len(records) == 0 {
		return NoCasesSummary
	}
	n := len(records)

	labels := newCounter()
	risks := newCounter()
	deliveries := newCounter()
	interventions := newCounter()
	var nicu int
	var sumLB, sumASTV, sumAC, sumDL, sumDS, sumApgar1, sumApgar5, sumGA float64
	for _, r := range records {
		label := r.NSPLabel
		if label == "" {
			label = "Unknown"
		}
		labels.add(label)
		for _, risk := range r.Demographics.riskFactors() {
			risks.add(risk)
		}
		mode := r.Outcome.DeliveryMode
		if mode == "" {
			mode = "Unknown"
		}
		deliveries.add(mode)
		for _, intervention := range r.Outcome.Interventions {
			interventions.add(intervention)
		}
		if r.Outcome.NICUAdmission {
			nicu++
		}
		sumLB += r.CTGFeatures["LB"]
		sumASTV += r.CTGFeatures["ASTV"]
		sumAC += r.CTGFeatures["AC"]
		sumDL += r.CTGFeatures["DL"]
		sumDS += r.CTGFeatures["DS"]
		sumApgar1 += float64(r.Outcome.Apgar1Min)
		sumApgar5 += float64(r.Outcome.Apgar5Min)
		sumGA += r.Demographics.GestationalAgeWeeks
	}
	mean := func(sum float64) float64 { return sum / float64(n) }
	top := labels.mostCommon(1)[0]

	var b strings.Builder
	fmt.Fprintf(&b, "## Clinical Case Summary Analysis (%d Similar Cases)\n", n)

	b.WriteString("### Classification Pattern\n")
	fmt.Fprintf(&b, "- **Predominant Classification**: %s (%d/%d cases)\n", top.key, top.count, n)
	if len(labels.order) > 1 {
		fmt.Fprintf(&b, "- **Distribution**: %s\n", labels.join())
	}

	b.WriteString("\n### CTG Pattern Characteristics\n")
	fmt.Fprintf(&b, "- **Average Baseline FHR**: %.1f bpm\n", mean(sumLB))
	fmt.Fprintf(&b, "- **Average Variability (ASTV)**: %.1f ms\n", mean(sumASTV))
	fmt.Fprintf(&b, "- **Average Accelerations**: %.3f/sec\n", mean(sumAC))
	if mean(sumDL) > 0 || mean(sumDS) > 0 {
		fmt.Fprintf(&b, "- **Decelerations**: Light (%.2f/sec), Severe (%.2f/sec)\n", mean(sumDL), mean(sumDS))
	}

	if len(risks.order) > 0 {
		b.WriteString("\n### Common Risk Factors\n")
		for _, e := range risks.mostCommon(5) {
			fmt.Fprintf(&b, "- %s (%d/%d cases)\n", e.key, e.count, n)
		}
	}

	b.WriteString("\n### Outcomes & Management\n")
	fmt.Fprintf(&b, "- **Delivery Methods**: %s\n", deliveries.join())
	fmt.Fprintf(&b, "- **NICU Admissions**: %d/%d cases\n", nicu, n)
	fmt.Fprintf(&b, "- **Average Apgar Scores**: 1-min: %.1f, 5-min: %.1f\n", mean(sumApgar1), mean(sumApgar5))

	if len(interventions.order) > 0 {
		b.WriteString("\n### Frequent Interventions\n")
		for _, e := range interventions.mostCommon(5) {
			fmt.Fprintf(&b, "- %s (%d occurrences)\n", e.key, e.count)
		}
	}

	b.WriteString("\n### Key Clinical Insights\n")
	switch top.key {
	case "Normal":
		b.WriteString("- These cases demonstrate reassuring CTG patterns with good variability and appropriate baseline\n")
		b.WriteString("- Most delivered vaginally with favorable neonatal outcomes\n")
	case "Suspect":
		b.WriteString("- Category 2 patterns require heightened surveillance and conservative management\n")
		b.WriteString("- Early intervention with repositioning, hydration, and oxygen often beneficial\n")
		b.WriteString("- Close reassessment every 15-30 minutes essential\n")
	default:
		b.WriteString("- Category 3 patterns demand immediate action and preparation for expedited delivery\n")
		b.WriteString("- High rate of emergency interventions and NICU admissions reflects severity\n")
		b.WriteString("- Rapid recognition and response critical for optimizing outcomes\n")
	}
	fmt.Fprintf(&b, "- Average gestational age: %.1f weeks\n", mean(sumGA))
	return b.String()
}

type countEntry struct {
	key   string
	count int
}

// counter keeps first-seen order so ties rank stably.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) mostCommon(k int) []countEntry {
	entries := make([]countEntry, len(c.order))
	for i, key := range c.order {
		entries[i] = countEntry{key: key, count: c.counts[key]}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].count > entries[j].count })
	if k < len(entries) {
		entries = entries[:k]
	}
	return entries
}

func (c *counter) join() string {
	parts := make([]string, len(c.order))
	for i, key := range c.order {
		parts[i] = fmt.Sprintf("%s (%d)", key, c.counts[key])
	}
	return strings.Join(parts, ", ")
}
