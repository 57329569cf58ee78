package strvct

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCAMAddDeduplicates(t *testing.T) {
	c := CAM{}
	a := c.Add("body { color: red }")
	b := c.Add("body { color: red }")
	c.Add("x")

	assert.Equal(t, a, b)
	assert.Len(t, c, 2)
	require.NoError(t, c.Verify())
}

func TestCAMVerifyDetectsMismatch(t *testing.T) {
	c := CAM{HashString("a"): "b"}
	err := c.Verify()

	var mismatch *IntegrityMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, HashString("b"), mismatch.Got)
}

func TestCAMRoundTrip(t *testing.T) {
	c := CAM{}
	c.Add("console.log(1)\n")
	c.Add("<svg/>")

	buf, err := MarshalArtifact(c)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"OHml2TCuGZmyeKOkmPfeP9g7qNrlkzD8+i2zHBA6wh0=": "console.log(1)\n"`)

	back, err := DecodeCAM(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, c, back)

	ids := back.IDs()
	require.Len(t, ids, 2)
	assert.Less(t, ids[0].String(), ids[1].String())
}

func TestDecodeCAMRejectsNonObject(t *testing.T) {
	_, err := DecodeCAM(strings.NewReader(`null`))
	assert.Error(t, err)

	_, err = DecodeCAM(strings.NewReader(`{"not-a-hash": "x"}`))
	assert.Error(t, err)
}
