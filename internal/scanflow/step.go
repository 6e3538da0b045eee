package scanflow

// Step is a screen of the scan wizard.
type Step string

const (
	StepCapture    Step = "capture"
	StepResults    Step = "results"
	StepJewelry    Step = "jewelry"
	StepPrice      Step = "price"
	StepDonateSell Step = "donate-sell"
	StepAdded      Step = "added"
)

// Steps lists every step in wizard order.
var Steps = []Step{StepCapture, StepResults, StepJewelry, StepPrice, StepDonateSell, StepAdded}

func (s Step) String() string {
	return string(s)
}

// Valid reports whether s is one of the wizard steps.
func (s Step) Valid() bool {
	for _, step := range Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Title is the heading shown for the step.
func (s Step) Title() string {
	switch s {
	case StepCapture:
		return "Step 1: Capture photos"
	case StepResults:
		return "Step 2: Verify details"
	case StepJewelry:
		return "Jewelry details"
	case StepPrice:
		return "Step 3: Your price"
	case StepDonateSell:
		return "Step 4: Sell or Donate"
	case StepAdded:
		return "Item added to cart"
	default:
		return string(s)
	}
}
