package vdf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTextTree(t *testing.T) {
	doc := `
"appinfo"
{
	"common"
	{
		"name"		"Half-Life 3"
	}
	"depots"
	{
		"workshopdepot"		"123"
		"456"
		{
			"manifests"
			{
				"public"	"7"
			}
		}
	}
}
`
	root, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	name := root.Get("appinfo", "common", "name")
	require.NotNil(t, name)
	require.Equal(t, "Half-Life 3", name.Value)

	wd, ok := root.Get("appinfo", "depots", "workshopdepot").Uint32()
	require.True(t, ok)
	require.EqualValues(t, 123, wd)

	require.NotNil(t, root.Get("appinfo", "depots", "456", "manifests"))
}

func TestParseBinaryPackageInfo(t *testing.T) {
	var data []byte
	data = append(data, tagNested)
	data = append(data, []byte("1234\x00")...)

	data = append(data, tagNested)
	data = append(data, []byte("appids\x00")...)
	data = append(data, tagInt32)
	data = append(data, []byte("0\x00")...)
	data = append(data, 10, 3, 0, 0)
	data = append(data, tagEnd)

	data = append(data, tagEnd)
	data = append(data, tagEnd)

	root, err := ParseBinary(data)
	require.NoError(t, err)

	appids := root.Get("1234", "appids", "0")
	require.NotNil(t, appids)
	require.False(t, appids.Field.IsString)
	require.EqualValues(t, 778, appids.Field.Int32)
}
