package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnchorSplit(t *testing.T) {
	hook := AnchorSplit("anchor", "anchor_date")

	t.Run("encoded value", func(t *testing.T) {
		row := map[string]string{"anchor": "MPC 2.5.2025=7,99€"}
		hook(row)
		assert.Equal(t, "7,99€", row["anchor"])
		assert.Equal(t, "2025-05-02", row["anchor_date"])
	})

	t.Run("unmatched value cleared", func(t *testing.T) {
		row := map[string]string{"anchor": "7,99"}
		hook(row)
		assert.Equal(t, "", row["anchor"])
		assert.Equal(t, "", row["anchor_date"])
	})

	t.Run("bad date cleared", func(t *testing.T) {
		row := map[string]string{"anchor": "MPC 31.13.2025=1,00"}
		hook(row)
		assert.Equal(t, "", row["anchor"])
		assert.Equal(t, "", row["anchor_date"])
	})

	t.Run("empty", func(t *testing.T) {
		row := map[string]string{}
		hook(row)
		assert.Equal(t, "", row["anchor_date"])
	})
}

func TestCollapseWhitespace(t *testing.T) {
	rec := ProductRecord{
		Product:  `  "Čokolada   mliječna  100 g"  `,
		Brand:    ` "Kraš" `,
		Category: `"Slatkiši"`,
		Unit:     ` "kom"`,
		Quantity: `"0,1"`,
	}
	CollapseWhitespace(&rec)

	assert.Equal(t, "Čokolada mliječna 100 g", rec.Product)
	assert.Equal(t, "Kraš", rec.Brand)
	assert.Equal(t, "Slatkiši", rec.Category)
	assert.Equal(t, "kom", rec.Unit)
	assert.Equal(t, "0.1", rec.Quantity)
}
