package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"cashflow/services/cashflowd/index"
)

const batchLimit = 1000

// Source supplies rows that have not yet been exported.
type Source interface {
	PendingExport(ctx context.Context, limit int) ([]index.RedemptionRow, []index.SaleRow, error)
	MarkExported(ctx context.Context, redemptionIDs, saleIDs []uint) error
}

// Uploader ships a finished export file to remote storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
}

type redemptionRecord struct {
	Vault           string `parquet:"name=vault, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Redeemer        string `parquet:"name=redeemer, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Month           uint32 `parquet:"name=month, type=UINT_32"`
	TokenAmount     uint64 `parquet:"name=token_amount, type=UINT_64"`
	RedemptionValue uint64 `parquet:"name=redemption_value, type=UINT_64"`
	RedeemedAt      int64  `parquet:"name=redeemed_at, type=TIMESTAMP_MILLIS"`
}

type saleRecord struct {
	Vault              string `parquet:"name=vault, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Buyer              string `parquet:"name=buyer, type=UTF8, encoding=PLAIN_DICTIONARY"`
	TokenAmount        uint64 `parquet:"name=token_amount, type=UINT_64"`
	PurchasePrice      uint64 `parquet:"name=purchase_price, type=UINT_64"`
	DiscountPercentage uint8  `parquet:"name=discount_percentage, type=UINT_8"`
	PurchasedAt        int64  `parquet:"name=purchased_at, type=TIMESTAMP_MILLIS"`
}

// Result summarises a completed export run.
type Result struct {
	Redemptions int
	Sales       int
	Files       []string
}

// Exporter writes pending redemptions and sales to snappy parquet files.
type Exporter struct {
	source   Source
	dir      string
	uploader Uploader
	nowFn    func() time.Time
}

// New builds an exporter writing into dir. uploader may be nil.
func New(source Source, dir string, uploader Uploader) *Exporter {
	return &Exporter{source: source, dir: dir, uploader: uploader, nowFn: time.Now}
}

// SetNowFunc overrides the clock used for file names.
func (e *Exporter) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		fn = time.Now
	}
	e.nowFn = fn
}

// Run exports a single batch. Rows are only marked exported once every file
// has been written and uploaded.
func (e *Exporter) Run(ctx context.Context) (Result, error) {
	var result Result
	if e == nil || e.source == nil {
		return result, errors.New("export: source not configured")
	}
	redemptions, sales, err := e.source.PendingExport(ctx, batchLimit)
	if err != nil {
		return result, fmt.Errorf("export: load pending: %w", err)
	}
	if len(redemptions) == 0 && len(sales) == 0 {
		return result, nil
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return result, fmt.Errorf("export: create dir: %w", err)
	}
	stamp := e.nowFn().UTC()

	redemptionIDs := make([]uint, 0, len(redemptions))
	if len(redemptions) > 0 {
		rows := make([]interface{}, 0, len(redemptions))
		for _, r := range redemptions {
			redemptionIDs = append(redemptionIDs, r.ID)
			rows = append(rows, &redemptionRecord{
				Vault:           r.Vault,
				Redeemer:        r.Redeemer,
				Month:           r.Month,
				TokenAmount:     r.TokenAmount.Uint64(),
				RedemptionValue: r.RedemptionValue.Uint64(),
				RedeemedAt:      r.RedeemedAt * 1000,
			})
		}
		file, err := e.write(ctx, "redemptions", stamp, new(redemptionRecord), rows)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, file)
	}

	saleIDs := make([]uint, 0, len(sales))
	if len(sales) > 0 {
		rows := make([]interface{}, 0, len(sales))
		for _, s := range sales {
			saleIDs = append(saleIDs, s.ID)
			rows = append(rows, &saleRecord{
				Vault:              s.Vault,
				Buyer:              s.Buyer,
				TokenAmount:        s.TokenAmount.Uint64(),
				PurchasePrice:      s.PurchasePrice.Uint64(),
				DiscountPercentage: s.DiscountPercentage,
				PurchasedAt:        s.PurchasedAt * 1000,
			})
		}
		file, err := e.write(ctx, "sales", stamp, new(saleRecord), rows)
		if err != nil {
			return result, err
		}
		result.Files = append(result.Files, file)
	}

	if err := e.source.MarkExported(ctx, redemptionIDs, saleIDs); err != nil {
		return result, fmt.Errorf("export: mark exported: %w", err)
	}
	result.Redemptions = len(redemptions)
	result.Sales = len(sales)
	return result, nil
}

func (e *Exporter) write(ctx context.Context, kind string, stamp time.Time, schema interface{}, rows []interface{}) (string, error) {
	name := fmt.Sprintf("%s_%s_%s.parquet", kind, stamp.Format("20060102T150405Z"), uuid.NewString())
	target := filepath.Join(e.dir, name)
	if err := writeParquet(target, schema, rows); err != nil {
		return "", err
	}
	log.Printf("export: wrote %s (%d rows)", target, len(rows))
	if e.uploader == nil {
		return target, nil
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("export: read %s: %w", name, err)
	}
	key := path.Join(kind, "date="+stamp.Format("2006-01-02"), name)
	if err := e.uploader.Upload(ctx, key, data); err != nil {
		return "", fmt.Errorf("export: upload %s: %w", key, err)
	}
	return target, nil
}

func writeParquet(target string, schema interface{}, rows []interface{}) error {
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	defer file.Close()
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), schema, 1)
	if err != nil {
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("export: write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("export: finalize parquet: %w", err)
	}
	return nil
}

// S3Config describes the upload target.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Uploader uploads exports to an S3 compatible bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader loads AWS configuration, preferring static credentials when
// both keys are supplied.
func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("export: bucket required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("export: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3Uploader{client: client, bucket: bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte) error {
	if u.prefix != "" {
		key = u.prefix + "/" + key
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"content-type": "parquet", "compression": "snappy"},
	})
	return err
}
