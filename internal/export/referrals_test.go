package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/openclaw/walletlink/internal/model"
)

type sliceSource []model.ReferralEdge

func (s sliceSource) ExportReferrals(ctx context.Context, visit func(model.ReferralEdge) error) error {
	for _, edge := range s {
		if err := visit(edge); err != nil {
			return err
		}
	}
	return nil
}

type failingSource struct{}

func (failingSource) ExportReferrals(ctx context.Context, visit func(model.ReferralEdge) error) error {
	return errors.New("connection reset")
}

func TestWriteReferrals(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	src := sliceSource{
		{ReferrerID: 1, ReferralID: 2, Credit: 200, CreatedAt: created},
		{ReferrerID: 1, ReferralID: 3, Credit: 200, CreatedAt: created.Add(time.Hour)},
	}

	var buf bytes.Buffer
	n, err := WriteReferrals(context.Background(), src, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{referralSheet}, f.GetSheetList())

	rows, err := f.GetRows(referralSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, referralHeaders, rows[0])
	assert.Equal(t, []string{"1", "2", "200", "2026-03-01 12:30:00"}, rows[1])
	assert.Equal(t, []string{"1", "3", "200", "2026-03-01 13:30:00"}, rows[2])
}

func TestWriteReferrals_Empty(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteReferrals(context.Background(), sliceSource{}, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(referralSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteReferrals_SourceError(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteReferrals(context.Background(), failingSource{}, &buf)
	assert.ErrorContains(t, err, "connection reset")
	assert.Zero(t, buf.Len())
}
