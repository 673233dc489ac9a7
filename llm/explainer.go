package llm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	parentMaxTokens = 700
	doctorMaxTokens = 900
	temperature     = 0.2
)

// Explanation is the pair of texts produced for one prediction.
type Explanation struct {
	ParentText string `json:"parent_text"`
	DoctorText string `json:"doctor_text"`
}

// Explainer turns evidence into a parent-facing and a clinician-facing explanation.
type Explainer struct {
	client *Client
}

// NewExplainer uses client for both the parent and doctor texts.
func NewExplainer(client *Client) *Explainer {
	return &Explainer{client: client}
}

func (e *Explainer) Configured() bool {
	return e != nil && e.client.Configured()
}

// Explain requests both texts concurrently; either failure fails the call.
func (e *Explainer) Explain(ctx context.Context, evidence *Evidence) (*Explanation, error) {
	if !e.Configured() {
		return nil, ErrNotConfigured
	}
	if err := ValidateEvidence(evidence); err != nil {
		return nil, err
	}

	var out Explanation
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := e.client.Complete(ctx, []Message{
			{Role: "system", Content: ParentSystem},
			{Role: "user", Content: BuildParentUser(evidence)},
		}, temperature, parentMaxTokens)
		out.ParentText = text
		return err
	})
	g.Go(func() error {
		text, err := e.client.Complete(ctx, []Message{
			{Role: "system", Content: DoctorSystem},
			{Role: "user", Content: BuildDoctorUser(evidence)},
		}, temperature, doctorMaxTokens)
		out.DoctorText = text
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
