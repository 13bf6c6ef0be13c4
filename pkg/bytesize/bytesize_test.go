package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1024", 1024},
		{"1KB", 1024},
		{"1.5 MB", 1572864},
		{"2G", 2 * GB},
		{"10Gi", 10 * GB},
		{"1TB", TB},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "10XB", "-5MB"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0 B", Format(0))
	assert.Equal(t, "512 B", Format(512))
	assert.Equal(t, "1.00 KB", Format(1024))
	assert.Equal(t, "1.50 MB", Format(1572864))
	assert.Equal(t, "2.00 GB", Format(2*GB))
}

func TestSizeUnmarshalYAML(t *testing.T) {
	var cfg struct {
		Max Size `yaml:"max"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("max: 500Mi"), &cfg))
	assert.Equal(t, 500*MB, cfg.Max.Bytes())

	require.NoError(t, yaml.Unmarshal([]byte("max: 1048576"), &cfg))
	assert.Equal(t, MB, cfg.Max.Bytes())

	err := yaml.Unmarshal([]byte("max: [1, 2]"), &cfg)
	assert.Error(t, err)
}
