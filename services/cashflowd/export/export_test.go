package export

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"cashflow/services/cashflowd/index"
)

type fakeSource struct {
	redemptions []index.RedemptionRow
	sales       []index.SaleRow
	marked      [2][]uint
}

func (f *fakeSource) PendingExport(context.Context, int) ([]index.RedemptionRow, []index.SaleRow, error) {
	return f.redemptions, f.sales, nil
}

func (f *fakeSource) MarkExported(_ context.Context, r, s []uint) error {
	f.marked = [2][]uint{r, s}
	return nil
}

type fakeUploader struct {
	keys []string
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, key string, data []byte) error {
	if u.err != nil {
		return u.err
	}
	if len(data) == 0 {
		return errors.New("empty upload")
	}
	u.keys = append(u.keys, key)
	return nil
}

func TestExporterWritesParquetAndMarksRows(t *testing.T) {
	src := &fakeSource{
		redemptions: []index.RedemptionRow{
			{ID: 1, Vault: "v", Redeemer: "r", TokenAmount: 10, RedemptionValue: 10, RedeemedAt: 100},
			{ID: 2, Vault: "v", Redeemer: "r", Month: 1, TokenAmount: 20, RedemptionValue: 20, RedeemedAt: 200},
		},
		sales: []index.SaleRow{{ID: 7, Vault: "v", Buyer: "b", TokenAmount: 1000, PurchasePrice: 850, DiscountPercentage: 15}},
	}
	up := &fakeUploader{}
	exp := New(src, t.TempDir(), up)
	exp.SetNowFunc(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Redemptions)
	require.Equal(t, 1, res.Sales)
	require.Len(t, res.Files, 2)
	require.Equal(t, []uint{1, 2}, src.marked[0])
	require.Equal(t, []uint{7}, src.marked[1])

	require.Len(t, up.keys, 2)
	require.True(t, strings.HasPrefix(up.keys[0], "redemptions/date=2026-03-01/"))

	fr, err := local.NewLocalFileReader(res.Files[0])
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(redemptionRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())
	got := make([]redemptionRecord, 2)
	require.NoError(t, pr.Read(&got))
	require.Equal(t, uint32(1), got[1].Month)
	require.Equal(t, uint64(20), got[1].TokenAmount)
	require.Equal(t, int64(200_000), got[1].RedeemedAt)
}

func TestExporterKeepsFullUint64Range(t *testing.T) {
	src := &fakeSource{
		redemptions: []index.RedemptionRow{{
			ID: 1, Vault: "v", Redeemer: "r",
			Month:           math.MaxUint32,
			TokenAmount:     math.MaxUint64,
			RedemptionValue: math.MaxInt64 + 1,
		}},
		sales: []index.SaleRow{{ID: 2, Vault: "v", Buyer: "b", TokenAmount: math.MaxUint64, PurchasePrice: math.MaxUint64 - 1, DiscountPercentage: 99}},
	}
	res, err := New(src, t.TempDir(), nil).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	fr, err := local.NewLocalFileReader(res.Files[0])
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(redemptionRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	redemptions := make([]redemptionRecord, 1)
	require.NoError(t, pr.Read(&redemptions))
	require.Equal(t, uint32(math.MaxUint32), redemptions[0].Month)
	require.Equal(t, uint64(math.MaxUint64), redemptions[0].TokenAmount)
	require.Equal(t, uint64(math.MaxInt64+1), redemptions[0].RedemptionValue)

	sfr, err := local.NewLocalFileReader(res.Files[1])
	require.NoError(t, err)
	defer sfr.Close()
	spr, err := reader.NewParquetReader(sfr, new(saleRecord), 1)
	require.NoError(t, err)
	defer spr.ReadStop()
	sales := make([]saleRecord, 1)
	require.NoError(t, spr.Read(&sales))
	require.Equal(t, uint64(math.MaxUint64), sales[0].TokenAmount)
	require.Equal(t, uint64(math.MaxUint64-1), sales[0].PurchasePrice)
	require.Equal(t, uint8(99), sales[0].DiscountPercentage)
}

func TestExporterSkipsEmptyBatch(t *testing.T) {
	src := &fakeSource{}
	res, err := New(src, t.TempDir(), nil).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Files)
	require.Nil(t, src.marked[0])
}

func TestExporterLeavesRowsPendingOnUploadFailure(t *testing.T) {
	src := &fakeSource{redemptions: []index.RedemptionRow{{ID: 1, Vault: "v"}}}
	_, err := New(src, t.TempDir(), &fakeUploader{err: errors.New("offline")}).Run(context.Background())
	require.Error(t, err)
	require.Nil(t, src.marked[0])
}
