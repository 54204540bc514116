package fetcher

import (
	"context"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

type testItem struct {
	XMLName xml.Name `xml:"item"`
	Name    string   `xml:"name"`
	Value   int      `xml:"value"`
}

func TestStreamXML_SimpleElements(t *testing.T) {
	input := `<root>
		<item><name>alpha</name><value>1</value></item>
		<other>skip</other>
		<item><name>beta</name><value>2</value></item>
	</root>`

	itemCh, errCh := StreamXML[testItem](context.Background(), strings.NewReader(input), "item")

	var items []testItem
	for item := range itemCh {
		items = append(items, item)
	}
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Len(t, items, 2)
	assert.Equal(t, "alpha", items[0].Name)
	assert.Equal(t, 2, items[1].Value)
}

func TestStreamXML_Malformed(t *testing.T) {
	itemCh, errCh := StreamXML[testItem](context.Background(), strings.NewReader("<root><item>"), "item")
	for range itemCh {
	}
	var gotErr error
	for err := range errCh {
		gotErr = err
	}
	assert.Error(t, gotErr)
}

func TestReadXMLRecords(t *testing.T) {
	input := `<?xml version="1.0" encoding="UTF-8"?>
<Cjenik>
  <Proizvod sifra="100">
    <Naziv> Mlijeko 2,8% </Naziv>
    <Barkod>3850104005010</Barkod>
    <MPC>1,29</MPC>
  </Proizvod>
  <Proizvod sifra="101">
    <Naziv>Kruh</Naziv>
    <MPC></MPC>
  </Proizvod>
</Cjenik>`

	recs, err := ReadXMLRecords(context.Background(), strings.NewReader(input), "Proizvod")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "100", recs[0]["sifra"])
	assert.Equal(t, "Mlijeko 2,8%", recs[0]["Naziv"])
	assert.Equal(t, "1,29", recs[0]["MPC"])
	assert.Equal(t, "", recs[1]["MPC"])
	_, hasBarcode := recs[1]["Barkod"]
	assert.False(t, hasBarcode)
}

func TestReadXMLRecords_Windows1250(t *testing.T) {
	body, err := charmap.Windows1250.NewEncoder().String(`<r><p><Naziv>Čokolada</Naziv></p></r>`)
	require.NoError(t, err)
	input := `<?xml version="1.0" encoding="windows-1250"?>` + body

	recs, err := ReadXMLRecords(context.Background(), strings.NewReader(input), "p")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Čokolada", recs[0]["Naziv"])
}
