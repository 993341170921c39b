package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "imports/b1/Mapping_2024_.csv", Key("/imports/", "b1", "../Mapping 2024?.csv"))
	assert.Equal(t, "imports/b1/upload", Key("imports", "b1", "..."))
}

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Put(ctx, "imports/b1/a.csv", strings.NewReader("x;y\n"), 4, "text/csv"))

	rc, err := st.Get(ctx, "imports/b1/a.csv")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "x;y\n", string(body))

	_, err = st.Get(ctx, "imports/b1/missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, st.Put(ctx, "../escape", strings.NewReader(""), 0, ""))
}

type fakeS3 struct {
	objects map[string]string
	lastCT  string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Bucket+"/"+*in.Key] = string(b)
	f.lastCT = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	v, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(v))}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string]string{}}
	st := NewS3Store(fake, "uploads")

	require.NoError(t, st.Put(ctx, "imports/b1/a.xlsx", strings.NewReader("PK"), 2, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, "PK", fake.objects["uploads/imports/b1/a.xlsx"])
	assert.Contains(t, fake.lastCT, "spreadsheetml")

	rc, err := st.Get(ctx, "imports/b1/a.xlsx")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "PK", string(b))

	_, err = st.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
