package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cgs/glassbid-worker/internal/jobstore"
	"github.com/cgs/glassbid-worker/internal/logging"
	"github.com/cgs/glassbid-worker/internal/model"
	"github.com/cgs/glassbid-worker/internal/objectstore"
)

// ArtifactGenerator is the narrow contract this stage needs from C7,
// defined locally to avoid stage depending on the concrete artifact
// package (the artifact package depends on stage for dimension
// formatting).
type ArtifactGenerator interface {
	GenerateBidPDF(ssot *model.SSOT, outputPath string) error
	GenerateShopDrawingsPDF(ssot *model.SSOT, outputPath string) error
}

// Validator is the narrow contract this stage needs from C6.
type Validator func(ssot *model.SSOT) []ValidationFinding

// ValidationFinding mirrors validate.Finding. Validation reaches this stage
// as a plain function value, so this package does not import validate.
type ValidationFinding struct {
	Code    string
	Message string
	ItemID  string
}

const outputTTL = 30 * 24 * time.Hour

// Generating implements the GENERATING stage (spec.md §4.5.5).
type Generating struct {
	store     jobstore.Store
	objects   objectstore.Client
	artifacts ArtifactGenerator
	validate  Validator
	log       *logging.Logger
}

// NewGenerating builds the GENERATING stage.
func NewGenerating(store jobstore.Store, objects objectstore.Client, artifacts ArtifactGenerator, validate Validator, log *logging.Logger) *Generating {
	return &Generating{store: store, objects: objects, artifacts: artifacts, validate: validate, log: log}
}

// Run executes GENERATING. On a blocking validation finding, reverts to
// PRICED with the findings attached to stage_progress and does not
// generate anything. Otherwise generates BID_PDF (blocking on failure)
// and SHOP_DRAWINGS_PDF (best-effort, spec.md §4.5.5).
func (s *Generating) Run(ctx context.Context, job *model.Job, tempDir string) error {
	findings := s.validate(job.SSOT)
	if blocking := blockingFindings(findings); len(blocking) > 0 {
		errorCode := "VALIDATION_ERROR"
		job.Status = model.StatusPriced
		job.ErrorCode = &errorCode
		job.StageProgress = &model.StageProgress{
			Stage:  "GENERATING",
			Errors: toValidationErrs(blocking),
		}
		return nil
	}

	bidVersion := job.SSOT.MaxOutputVersion(model.OutputBidPDF) + 1
	bidPath := fmt.Sprintf("%s/bid-v%d.pdf", tempDir, bidVersion)
	if err := s.artifacts.GenerateBidPDF(job.SSOT, bidPath); err != nil {
		return fmt.Errorf("generate bid pdf: %w", err)
	}
	bidOutput, err := s.uploadOutput(ctx, job, model.OutputBidPDF, bidVersion, bidPath)
	if err != nil {
		return fmt.Errorf("upload bid pdf: %w", err)
	}
	job.SSOT.Outputs = append(job.SSOT.Outputs, *bidOutput)

	shopVersion := job.SSOT.MaxOutputVersion(model.OutputShopDrawingsPDF) + 1
	shopPath := fmt.Sprintf("%s/shop-drawings-v%d.pdf", tempDir, shopVersion)
	if err := s.artifacts.GenerateShopDrawingsPDF(job.SSOT, shopPath); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("shop drawings generation failed, continuing")
	} else if shopOutput, err := s.uploadOutput(ctx, job, model.OutputShopDrawingsPDF, shopVersion, shopPath); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("shop drawings upload failed, continuing")
	} else {
		job.SSOT.Outputs = append(job.SSOT.Outputs, *shopOutput)
	}

	job.Status = model.StatusDone
	return nil
}

func (s *Generating) uploadOutput(ctx context.Context, job *model.Job, outputType model.OutputType, version int, localPath string) (*model.Output, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)

	var suffix string
	if outputType == model.OutputBidPDF {
		suffix = "bid"
	} else {
		suffix = "shop-drawings"
	}
	key := fmt.Sprintf("%s/%s/%s-v%d.pdf", job.ProjectID, job.ID, suffix, version)

	if err := s.objects.Upload(ctx, "outputs", key, localPath, "application/pdf"); err != nil {
		return nil, err
	}

	expires := time.Now().Add(outputTTL)
	if err := s.store.CreateStorageObject(ctx, model.StorageObject{
		ID:          uuid.NewString(),
		JobID:       job.ID,
		Bucket:      "outputs",
		Key:         key,
		SizeBytes:   int64(len(data)),
		SHA256:      hex.EncodeToString(sum[:]),
		ContentType: "application/pdf",
		TTLPolicy:   model.TTLOutput,
		ExpiresAt:   &expires,
	}); err != nil {
		return nil, err
	}

	return &model.Output{
		OutputID:    uuid.NewString(),
		Type:        outputType,
		Version:     version,
		Bucket:      "outputs",
		Key:         key,
		GeneratedAt: time.Now(),
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

func blockingFindings(findings []ValidationFinding) []ValidationFinding {
	var blocking []ValidationFinding
	for _, f := range findings {
		if !strings.HasSuffix(f.Code, "WARNING") {
			blocking = append(blocking, f)
		}
	}
	return blocking
}

func toValidationErrs(findings []ValidationFinding) []model.ValidationErr {
	out := make([]model.ValidationErr, 0, len(findings))
	for _, f := range findings {
		out = append(out, model.ValidationErr{Code: f.Code, Message: f.Message, ItemID: f.ItemID})
	}
	return out
}
