// SPDX-License-Identifier: MPL-2.0

package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"

	"facet/server/pipeline"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/xuri/excelize/v2"
)

// Exports run the full card pipeline first, so downloads match exactly what
// the dashboard shows, scripts and type overrides included.

func ExportCardCSV(app *App, ctx context.Context, cardID string, overrides map[string]string, writer io.Writer) error {
	result, err := RunCard(app, ctx, cardID, overrides)
	if err != nil {
		return err
	}
	if result.Error != "" {
		return fmt.Errorf("card script failed: %s", result.Error)
	}
	csvWriter := csv.NewWriter(writer)
	defer csvWriter.Flush()
	if err := csvWriter.Write(result.Columns); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = pipeline.Stringify(row[i])
			}
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("error writing CSV row: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportCardXLSX renders the card result as a styled workbook. Note that
// while the interface is streaming, the whole file is built in memory. This
// is a restriction of the excelize library.
func ExportCardXLSX(app *App, ctx context.Context, cardID string, overrides map[string]string, writer io.Writer) error {
	result, err := RunCard(app, ctx, cardID, overrides)
	if err != nil {
		return err
	}
	if result.Error != "" {
		return fmt.Errorf("card script failed: %s", result.Error)
	}

	xlsx := excelize.NewFile()
	sheetName := "Sheet1"

	headerStyle, err := xlsx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("error creating header style: %w", err)
	}
	styles := map[pipeline.ColumnType]int{
		pipeline.TypeDatetime: createStyle(xlsx, &excelize.Style{
			NumFmt: 22, // "m/d/yy h:mm"
			Alignment: &excelize.Alignment{
				Horizontal: "center",
			},
		}),
		pipeline.TypeDate: createStyle(xlsx, &excelize.Style{
			NumFmt: 14, // "m/d/yy"
			Alignment: &excelize.Alignment{
				Horizontal: "center",
			},
		}),
		pipeline.TypeInteger: createStyle(xlsx, &excelize.Style{
			Alignment: &excelize.Alignment{
				Horizontal: "right",
			},
		}),
		pipeline.TypeDecimal: createStyle(xlsx, &excelize.Style{
			Alignment: &excelize.Alignment{
				Horizontal: "right",
			},
		}),
		pipeline.TypeCurrency: createStyle(xlsx, &excelize.Style{
			NumFmt: 44, // accounting format
			Alignment: &excelize.Alignment{
				Horizontal: "right",
			},
		}),
		pipeline.TypeText: createStyle(xlsx, &excelize.Style{
			Alignment: &excelize.Alignment{
				Horizontal: "left",
				WrapText:   true,
			},
		}),
	}

	maxWidths := make([]float64, len(result.Columns))
	for colIdx, column := range result.Columns {
		cell, err := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err != nil {
			return fmt.Errorf("error converting coordinates: %w", err)
		}
		xlsx.SetCellValue(sheetName, cell, column)
		xlsx.SetCellStyle(sheetName, cell, cell, headerStyle)
		maxWidths[colIdx] = float64(len(column)) + 2
	}

	for rowIdx, row := range result.Rows {
		for colIdx, column := range result.Columns {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("error converting coordinates: %w", err)
			}
			var value any
			if colIdx < len(row) {
				value = row[colIdx]
			}
			columnType := result.ColumnTypes[column]
			style, ok := styles[columnType]
			if !ok {
				style = styles[pipeline.TypeText]
			}
			if value == nil {
				xlsx.SetCellValue(sheetName, cell, "")
			} else {
				xlsx.SetCellValue(sheetName, cell, value)
			}
			xlsx.SetCellStyle(sheetName, cell, cell, style)
			width := displayWidth(value) + 2
			maxWidths[colIdx] = math.Max(maxWidths[colIdx], width)
		}
	}

	for colIdx := range result.Columns {
		colName, err := excelize.ColumnNumberToName(colIdx + 1)
		if err != nil {
			return fmt.Errorf("error converting column number: %w", err)
		}
		// Clamp width between minimum of 6 and maximum of 100.
		width := math.Max(6, math.Min(100, maxWidths[colIdx]))
		xlsx.SetColWidth(sheetName, colName, colName, width)
	}

	if len(result.Columns) > 0 {
		lastCol, _ := excelize.ColumnNumberToName(len(result.Columns))
		filterRange := fmt.Sprintf("A1:%s%d", lastCol, len(result.Rows)+1)
		xlsx.AutoFilter(sheetName, filterRange, []excelize.AutoFilterOptions{})
	}

	// Freeze the header row.
	xlsx.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	return xlsx.Write(writer)
}

func createStyle(xlsx *excelize.File, style *excelize.Style) int {
	id, err := xlsx.NewStyle(style)
	if err != nil {
		return 0
	}
	return id
}

func displayWidth(value any) float64 {
	if value == nil {
		return 4 // width of "null"
	}
	return float64(len(fmt.Sprintf("%v", value)))
}

// S3Config is the optional export upload target. Endpoint empty means
// uploads are disabled.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// UploadExport renders a card export and puts it in the configured bucket.
// format is "csv" or "xlsx"; the returned key is bucket-relative.
func UploadExport(app *App, ctx context.Context, cfg S3Config, cardID string, format string, overrides map[string]string) (string, error) {
	var buf bytes.Buffer
	var contentType string
	switch format {
	case "csv":
		if err := ExportCardCSV(app, ctx, cardID, overrides, &buf); err != nil {
			return "", err
		}
		contentType = "text/csv"
	case "xlsx":
		if err := ExportCardXLSX(app, ctx, cardID, overrides, &buf); err != nil {
			return "", err
		}
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "", fmt.Errorf("unknown export format: %s", format)
	}

	client, err := newMinioClient(cfg)
	if err != nil {
		return "", err
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return "", fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		return "", fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}
	// A fresh key per upload; exports are never overwritten.
	key := fmt.Sprintf("exports/%s/%s.%s", cardID, uuid.NewString(), format)
	_, err = client.PutObject(ctx, cfg.Bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload export: %w", err)
	}
	return key, nil
}

func newMinioClient(cfg S3Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("S3 endpoint is required")
	}
	cleanEndpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	cleanEndpoint = strings.TrimPrefix(cleanEndpoint, "https://")
	useSSL := !strings.HasPrefix(cfg.Endpoint, "http://")

	// Fall back to the ambient credential chain when no keys are configured.
	var creds *credentials.Credentials
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
			&credentials.FileAWSCredentials{},
			&credentials.FileMinioClient{},
			&credentials.IAM{},
		})
	}

	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}
