// Package export renders ledger data as spreadsheets for operators.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/openclaw/walletlink/internal/model"
)

const referralSheet = "Referrals"

var referralHeaders = []string{"Referrer ID", "Referral ID", "Credit", "Created At"}

type ReferralSource interface {
	ExportReferrals(ctx context.Context, visit func(model.ReferralEdge) error) error
}

// WriteReferrals streams every referral edge into an xlsx workbook and
// returns the number of rows written.
func WriteReferrals(ctx context.Context, src ReferralSource, w io.Writer) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(referralSheet)
	if err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return 0, fmt.Errorf("delete default sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(referralSheet)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]interface{}, len(referralHeaders))
	for i, h := range referralHeaders {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err = src.ExportReferrals(ctx, func(edge model.ReferralEdge) error {
		rows++
		cell, err := excelize.CoordinatesToCellName(1, rows+1)
		if err != nil {
			return err
		}
		return sw.SetRow(cell, []interface{}{
			edge.ReferrerID,
			edge.ReferralID,
			edge.Credit,
			edge.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("export referrals: %w", err)
	}

	if err := sw.Flush(); err != nil {
		return 0, fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}
