package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lending-harvest/internal/model"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1,234.50", 1234.5, false},
		{"1234.5", 1234.5, false},
		{" 800 亿元", 800, false},
		{"１，２３４", 1234, false},
		{"12 345", 12345, false},
		{"N/A", 0, true},
		{"", 0, true},
		{"-", 0, true},
		{"-3.5", -3.5, false},
		{"NaN", 0, true},
		{"nan", 0, true},
		{"inf", 0, true},
		{"-Infinity", 0, true},
		{"1e3", 0, true},
		{"0x1p4", 0, true},
		{"1.2.3", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseAmount_SeparatorsDoNotChangeValue(t *testing.T) {
	a, err := ParseAmount("1,234.50")
	require.NoError(t, err)
	b, err := ParseAmount("1234.5")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParsePercentAndCount(t *testing.T) {
	v, err := ParsePercent("12.5%")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-9)

	v, err = ParsePercent("１２％")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, v, 1e-9)

	n, err := ParseCount("12家")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = ParseCount("1.5")
	assert.Error(t, err)
}

func TestResolvePeriod(t *testing.T) {
	ctx2024 := Context{Year: 2024}
	tests := []struct {
		name string
		text string
		ctx  Context
		want model.Period
	}{
		{"explicit month", "截至2024年3月末，花呗余额", Context{Year: 2020}, model.Period{Year: 2024, Month: 3}},
		{"dash month", "2023-11月数据", ctx2024, model.Period{Year: 2023, Month: 11}},
		{"quarter with year", "2023年第2季度", Context{Year: 2022}, model.Period{Year: 2023, Month: 6}},
		{"quarter numeral", "第二季度经营情况", ctx2024, model.Period{Year: 2024, Month: 6}},
		{"quarter Q", "Q4 results", ctx2024, model.Period{Year: 2024, Month: 12}},
		{"second quarter marker", "第2季度", ctx2024, model.Period{Year: 2024, Month: 6}},
		{"no marker", "贷款余额稳定", ctx2024, model.Period{Year: 2024, Month: 12}},
		{"invalid explicit month", "2024年13月", ctx2024, model.Period{Year: 2024, Month: 12}},
		{"default month", "无", Context{Year: 2024, DefaultMonth: 5}, model.Period{Year: 2024, Month: 5}},
		{"unknown year", "无", Context{}, model.Period{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePeriod(tt.text, tt.ctx))
		})
	}
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed("任何文本", nil))
	assert.True(t, Allowed("互联网贷款余额", []string{"信贷", "贷款"}))
	assert.False(t, Allowed("花呗余额", []string{"信贷", "贷款"}))
	assert.False(t, Allowed("花呗余额", []string{""}))
}
