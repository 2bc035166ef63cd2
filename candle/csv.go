package candle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gopyra/types"
)

// ReadCSV parses rows of close_time,open,high,low,close,volume. close_time
// is unix seconds or RFC3339; a header row is skipped. The result is Clean.
func ReadCSV(r io.Reader) ([]types.Candle, error) {
	rd := csv.NewReader(r)
	rd.FieldsPerRecord = 6
	rd.TrimLeadingSpace = true

	var out []types.Candle
	for line := 1; ; line++ {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "close_time") {
			continue
		}
		c, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		out = append(out, c)
	}
	return Clean(out), nil
}

func parseRow(rec []string) (types.Candle, error) {
	ts, err := parseTime(rec[0])
	if err != nil {
		return types.Candle{}, err
	}
	vals := make([]decimal.Decimal, 5)
	for i := range vals {
		d, err := decimal.NewFromString(strings.TrimSpace(rec[i+1]))
		if err != nil {
			return types.Candle{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = d
	}
	return types.Candle{
		CloseTime: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
