package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/theblitlabs/parity-stake/internal/core/config"
	"github.com/theblitlabs/parity-stake/internal/core/models"
	"github.com/theblitlabs/parity-stake/pkg/logger"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3AuditArchive writes every committed slash to a bucket as a JSON
// document under slashes/<worker id>/.
type S3AuditArchive struct {
	client     objectPutter
	bucketName string
}

// NewS3AuditArchive loads AWS credentials and creates an archive for cfg.BucketName.
func NewS3AuditArchive(ctx context.Context, cfg config.AWSConfig) (*S3AuditArchive, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("missing required AWS credentials")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("AWS region must be specified")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("AWS bucket name must be specified")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &S3AuditArchive{
		client:     s3.NewFromConfig(awsCfg),
		bucketName: cfg.BucketName,
	}, nil
}

type slashDocument struct {
	ID                uint64    `json:"id"`
	WorkerID          uint64    `json:"worker_id"`
	Reason            string    `json:"reason"`
	Amount            string    `json:"amount"`
	ReputationPenalty int       `json:"reputation_penalty"`
	EvidenceHash      string    `json:"evidence_hash"`
	JobID             string    `json:"job_id,omitempty"`
	Slasher           string    `json:"slasher"`
	Timestamp         time.Time `json:"timestamp"`
}

func slashKey(record models.SlashRecord) string {
	filename := fmt.Sprintf("%d-%s.json", record.ID, uuid.New().String())
	return path.Join("slashes", strconv.FormatUint(record.WorkerID, 10), filename)
}

func (a *S3AuditArchive) ArchiveSlash(ctx context.Context, record models.SlashRecord) error {
	log := logger.WithWorker("audit_archive", record.WorkerID)

	body, err := json.Marshal(slashDocument{
		ID:                record.ID,
		WorkerID:          record.WorkerID,
		Reason:            string(record.Reason),
		Amount:            record.Amount.Dec(),
		ReputationPenalty: record.ReputationPenalty,
		EvidenceHash:      record.EvidenceHash.Hex(),
		JobID:             record.JobID,
		Slasher:           record.Slasher.Hex(),
		Timestamp:         record.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode slash record: %w", err)
	}

	key := slashKey(record)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		log.Error().Err(err).
			Str("bucket", a.bucketName).
			Str("key", key).
			Msg("Failed to upload slash record to S3")
		return fmt.Errorf("failed to upload slash record: %w", err)
	}

	log.Debug().Str("bucket", a.bucketName).Str("key", key).Msg("Slash record archived")
	return nil
}
