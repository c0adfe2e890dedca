package stage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/stage"
)

type fakeArtifactGenerator struct {
	bidCalls int
}

func (f *fakeArtifactGenerator) GenerateBidPDF(ssot *model.SSOT, outputPath string) error {
	f.bidCalls++
	return nil
}

func (f *fakeArtifactGenerator) GenerateShopDrawingsPDF(ssot *model.SSOT, outputPath string) error {
	return nil
}

// Scenario 4 — validation gates generation: a subtotal mismatch reverts
// the job to PRICED with stage_progress.errors[].code == MATH_ERROR and
// no BID_PDF output, without calling the artifact generator.
func TestGenerating_BlockedByValidationRevertsToPriced(t *testing.T) {
	gen := &fakeArtifactGenerator{}
	validator := func(ssot *model.SSOT) []stage.ValidationFinding {
		return []stage.ValidationFinding{{Code: "MATH_ERROR", Message: "subtotal mismatch"}}
	}

	g := stage.NewGenerating(nil, nil, gen, validator, logging.Default())

	job := &model.Job{
		ID: "job-1",
		SSOT: &model.SSOT{
			Pricing: model.Pricing{Subtotal: 99999.99},
		},
	}

	err := g.Run(context.Background(), job, t.TempDir())
	require.NoError(t, err)

	require.Equal(t, model.StatusPriced, job.Status)
	require.NotNil(t, job.ErrorCode)
	require.Equal(t, "VALIDATION_ERROR", *job.ErrorCode)
	require.NotNil(t, job.StageProgress)
	require.Len(t, job.StageProgress.Errors, 1)
	require.Equal(t, "MATH_ERROR", job.StageProgress.Errors[0].Code)
	require.Empty(t, job.SSOT.Outputs)
	require.Zero(t, gen.bidCalls)
}
