package batch

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/irrigation/irrigation"
)

func TestReadFullTable(t *testing.T) {
	in := "Soil,TEMP, Humidity ,Crop\n25,35,60,Rice\n70,28,50,Wheat\n"

	tbl, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"soil", "temp", "humidity", "crop"}, tbl.Columns())

	assert.Equal(t, irrigation.EnvironmentSample{SoilMoisture: 25, Temperature: 35, Humidity: 60}, tbl.Records[0].Sample)
	assert.Equal(t, "Rice", tbl.Records[0].Crop)
	assert.Equal(t, 2, tbl.Records[0].Line)
	assert.Equal(t, 3, tbl.Records[1].Line)
}

func TestReadDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Record
	}{
		{
			name: "missing columns",
			in:   "soil\n12\n",
			want: Record{Sample: irrigation.EnvironmentSample{SoilMoisture: 12, Temperature: DefaultTemp, Humidity: DefaultHumidity}, Crop: DefaultCrop},
		},
		{
			name: "empty cells",
			in:   "soil,temp,humidity,crop\n,,,\n",
			want: Record{Sample: irrigation.EnvironmentSample{SoilMoisture: DefaultSoil, Temperature: DefaultTemp, Humidity: DefaultHumidity}, Crop: DefaultCrop},
		},
		{
			name: "NA spellings",
			in:   "soil,temp,humidity,crop\nNaN,n/a,NULL,None\n",
			want: Record{Sample: irrigation.EnvironmentSample{SoilMoisture: DefaultSoil, Temperature: DefaultTemp, Humidity: DefaultHumidity}, Crop: DefaultCrop},
		},
		{
			name: "only crop",
			in:   "crop\nQuinoa\n",
			want: Record{Sample: irrigation.EnvironmentSample{SoilMoisture: DefaultSoil, Temperature: DefaultTemp, Humidity: DefaultHumidity}, Crop: "Quinoa"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Read(strings.NewReader(tt.in))
			require.NoError(t, err)
			require.Len(t, tbl.Records, 1)

			if diff := cmp.Diff(tt.want, tbl.Records[0], cmpopts.IgnoreFields(Record{}, "Line")); diff != "" {
				t.Errorf("record mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadStripsBOM(t *testing.T) {
	tbl, err := Read(strings.NewReader("\xEF\xBB\xBFsoil,crop\n20,Rice\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"soil", "crop"}, tbl.Columns())
	assert.Equal(t, 20.0, tbl.Records[0].Sample.SoilMoisture)
}

func TestReadExtraColumnsKept(t *testing.T) {
	in := "field,soil,notes\nnorth,20,\"dry, cracked\"\n"

	tbl, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.NoError(t, tbl.AppendColumn("verdict", []string{"High"}))

	var out bytes.Buffer
	require.NoError(t, tbl.Write(&out))
	assert.Equal(t, "field,soil,notes,verdict\nnorth,20,\"dry, cracked\",High\n", out.String())
}

func TestReadHeaderOnly(t *testing.T) {
	tbl, err := Read(strings.NewReader("soil,temp\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
}

func TestReadInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"blank lines":        "\n\n",
		"no known columns":   "moisture,temperature\n20,30\n",
		"ragged row":         "soil,temp\n20,30,40\n",
		"bad quote":          "soil,crop\n20,\"Rice\n",
		"non numeric soil":   "soil,temp\ndry,30\n",
		"non numeric temp":   "soil,temp\n20,hot\n",
		"non numeric humid":  "humidity\n50%\n",
		"bad row after good": "soil\n20\n30\nwet\n",
	}

	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			tbl, err := Read(strings.NewReader(in))
			assert.Nil(t, tbl)
			assert.ErrorIs(t, err, irrigation.ErrInvalidInput)
		})
	}
}

func TestReadKeepsReaderError(t *testing.T) {
	errTooLarge := errors.New("body too large")
	r := io.MultiReader(strings.NewReader("soil\n10\n"), iotest.ErrReader(errTooLarge))

	tbl, err := Read(r)
	assert.Nil(t, tbl)
	assert.ErrorIs(t, err, irrigation.ErrInvalidInput)
	assert.ErrorIs(t, err, errTooLarge)
}

func TestInvalidMessageNamesLine(t *testing.T) {
	_, err := Read(strings.NewReader("soil\n20\n30\nwet\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4")
	assert.Contains(t, err.Error(), `"wet"`)
}

func TestAppendColumn(t *testing.T) {
	tbl, err := Read(strings.NewReader("soil,temp\n20,35\n50,20\n"))
	require.NoError(t, err)

	assert.Error(t, tbl.AppendColumn("verdict", []string{"High"}))
	require.NoError(t, tbl.AppendColumn("verdict", []string{"High", "Low"}))

	var out bytes.Buffer
	require.NoError(t, tbl.Write(&out))
	assert.Equal(t, "soil,temp,verdict\n20,35,High\n50,20,Low\n", out.String())
}

func TestAppendColumnReplacesExisting(t *testing.T) {
	tbl, err := Read(strings.NewReader("soil,Verdict\n20,stale\n"))
	require.NoError(t, err)
	require.NoError(t, tbl.AppendColumn("verdict", []string{"Medium"}))

	var out bytes.Buffer
	require.NoError(t, tbl.Write(&out))
	assert.Equal(t, "soil,verdict\n20,Medium\n", out.String())
}
