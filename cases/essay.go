package cases

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	textcases "golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Essay renders a case as a markdown case study for the dashboard.
func Essay(c CaseRecord) string {
	demo := c.Demographics
	ctg := c.CTGFeatures
	outcome := c.Outcome

	var b strings.Builder
	fmt.Fprintf(&b, "**Case Presentation:** A %d-year-old G%dP%d patient at %s weeks gestation",
		demo.Age, demo.Gravida, demo.Para, formatNumber(demo.GestationalAgeWeeks))
	if risks := demo.riskFactors(); len(risks) > 0 {
		fmt.Fprintf(&b, " with %s", strings.Join(risks, ", "))
	}
	fmt.Fprintf(&b, " was admitted on %s for continuous fetal monitoring.", demo.AdmissionDate)

	fmt.Fprintf(&b, "\n\n**CTG Analysis:** Initial assessment revealed a baseline fetal heart rate of %d bpm with %dms variability. ",
		int(math.RoundToEven(ctg["LB"])), int(math.RoundToEven(ctg["ASTV"])))
	switch c.NSPLabel {
	case "Normal":
		fmt.Fprintf(&b, "The tracing showed reassuring features with %s accelerations present and no concerning decelerations. ", formatNumber(ctg["AC"]))
		b.WriteString("Moderate variability was maintained throughout the monitoring period, indicating good fetal oxygenation.")
	case "Suspect":
		b.WriteString("The tracing demonstrated equivocal features with reduced accelerations and borderline variability. ")
		b.WriteString("Close observation was initiated with reassessment every 15-30 minutes. Conservative measures including maternal repositioning and hydration were implemented.")
	default:
		b.WriteString("The tracing exhibited non-reassuring patterns concerning for fetal compromise. ")
		b.WriteString("Immediate intervention was required including continuous monitoring, maternal oxygen therapy, and preparation for potential expedited delivery.")
	}

	fmt.Fprintf(&b, "\n\n**Clinical Course:** %s", c.ClinicalNarrative)

	b.WriteString("\n\n**Management & Delivery:** ")
	if len(outcome.Interventions) > 0 {
		fmt.Fprintf(&b, "Interventions included: %s. ", strings.Join(outcome.Interventions, ", "))
	}
	mode := outcome.DeliveryMode
	if mode == "" {
		mode = "Unknown"
	}
	fmt.Fprintf(&b, "Delivery was accomplished via %s. ", textcases.Lower(language.English).String(mode))
	fmt.Fprintf(&b, "The neonate was born with Apgar scores of %d at 1 minute and %d at 5 minutes, weighing %dg.",
		outcome.Apgar1Min, outcome.Apgar5Min, outcome.BirthWeightGrams)
	if outcome.NICUAdmission {
		b.WriteString(" The infant required NICU admission for further observation and management.")
	} else {
		b.WriteString(" The infant was vigorous and did not require intensive care.")
	}

	if len(outcome.MaternalComplications) > 0 || len(outcome.NeonatalComplications) > 0 {
		b.WriteString("\n\n**Complications:** ")
		if len(outcome.MaternalComplications) > 0 {
			fmt.Fprintf(&b, "Maternal: %s. ", strings.Join(outcome.MaternalComplications, ", "))
		}
		if len(outcome.NeonatalComplications) > 0 {
			fmt.Fprintf(&b, "Neonatal: %s.", strings.Join(outcome.NeonatalComplications, ", "))
		}
	}

	b.WriteString("\n\n**Key Learning Points:** ")
	switch c.NSPLabel {
	case "Normal":
		b.WriteString("This case demonstrates appropriate management of a reassuring CTG pattern with successful vaginal delivery outcome.")
	case "Suspect":
		b.WriteString("This case highlights the importance of close surveillance with Category 2 tracings and timely conservative interventions to optimize fetal status.")
	default:
		b.WriteString("This case emphasizes the critical need for rapid recognition and intervention in Category 3 patterns to prevent adverse neonatal outcomes.")
	}
	return b.String()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
