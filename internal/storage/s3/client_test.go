package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/gophaccount-server/internal/model"
)

type fakeS3 struct {
	headBucketErr   error
	createBucketErr error
	created         *s3.CreateBucketInput

	putErr  error
	put     *s3.PutObjectInput
	putBody []byte

	getBody io.ReadCloser
	getErr  error

	deleteErr error
	deleted   string

	headObjectErr error
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headBucketErr
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = in
	return &s3.CreateBucketOutput{}, f.createBucketErr
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	f.putBody, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeS3) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: f.getBody}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = aws.ToString(in.Key)
	return &s3.DeleteObjectOutput{}, f.deleteErr
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{}, f.headObjectErr
}

func TestNewClient_Bucket(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		api := &fakeS3{}
		_, err := newClient(ctx, api, "avatars", "us-east-1")
		require.NoError(t, err)
		assert.Nil(t, api.created)
	})

	t.Run("created with location", func(t *testing.T) {
		api := &fakeS3{headBucketErr: &types.NotFound{}}
		_, err := newClient(ctx, api, "avatars", "eu-central-1")
		require.NoError(t, err)
		require.NotNil(t, api.created)
		assert.Equal(t, "avatars", aws.ToString(api.created.Bucket))
		require.NotNil(t, api.created.CreateBucketConfiguration)
		assert.Equal(t, types.BucketLocationConstraint("eu-central-1"), api.created.CreateBucketConfiguration.LocationConstraint)
	})

	t.Run("created in default region", func(t *testing.T) {
		api := &fakeS3{headBucketErr: &types.NotFound{}}
		_, err := newClient(ctx, api, "avatars", "us-east-1")
		require.NoError(t, err)
		require.NotNil(t, api.created)
		assert.Nil(t, api.created.CreateBucketConfiguration)
	})

	t.Run("head fails", func(t *testing.T) {
		_, err := newClient(ctx, &fakeS3{headBucketErr: errors.New("forbidden")}, "avatars", "us-east-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to check bucket existence")
	})

	t.Run("create fails", func(t *testing.T) {
		_, err := newClient(ctx, &fakeS3{headBucketErr: &types.NotFound{}, createBucketErr: errors.New("denied")}, "avatars", "us-east-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create bucket")
	})
}

func TestClient_Upload(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{}
	c, err := newClient(ctx, api, "avatars", "us-east-1")
	require.NoError(t, err)

	t.Run("seekable body", func(t *testing.T) {
		require.NoError(t, c.Upload(ctx, "avatars/a.png", bytes.NewReader([]byte("img")), 3, "image/png"))
		assert.Equal(t, "avatars/a.png", aws.ToString(api.put.Key))
		assert.Equal(t, "image/png", aws.ToString(api.put.ContentType))
		assert.Equal(t, int64(3), aws.ToInt64(api.put.ContentLength))
		assert.Equal(t, []byte("img"), api.putBody)
	})

	t.Run("stream is buffered", func(t *testing.T) {
		body := io.MultiReader(strings.NewReader("ab"), strings.NewReader("cd"))
		require.NoError(t, c.Upload(ctx, "avatars/b.png", body, -1, "image/png"))
		assert.Equal(t, int64(4), aws.ToInt64(api.put.ContentLength))
		assert.Equal(t, []byte("abcd"), api.putBody)
	})

	t.Run("error", func(t *testing.T) {
		api.putErr = errors.New("boom")
		err := c.Upload(ctx, "k", bytes.NewReader(nil), 0, "image/png")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to upload object")
	})
}

func TestClient_DownloadDeleteExists(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{getBody: io.NopCloser(strings.NewReader("img"))}
	c, err := newClient(ctx, api, "avatars", "us-east-1")
	require.NoError(t, err)

	rc, err := c.Download(ctx, "avatars/a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "img", string(data))

	api.getErr = &types.NoSuchKey{}
	_, err = c.Download(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, c.Delete(ctx, "avatars/a.png"))
	assert.Equal(t, "avatars/a.png", api.deleted)
	api.deleteErr = errors.New("denied")
	require.Error(t, c.Delete(ctx, "k"))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	api.headObjectErr = &types.NotFound{}
	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	api.headObjectErr = errors.New("throttled")
	_, err = c.Exists(ctx, "k")
	require.Error(t, err)
}

func TestDial(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	var lo awsconfig.LoadOptions
	loadDefaultAWSConfig = func(_ context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{Region: lo.Region}, nil
	}

	api := &fakeS3{}
	var applied s3.Options
	newS3ClientFromConfig = func(_ aws.Config, optFns ...func(*s3.Options)) objectAPI {
		for _, fn := range optFns {
			fn(&applied)
		}
		return api
	}

	c, err := Dial(context.Background(), Options{
		Region:       "eu-central-1",
		BaseEndpoint: "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "avatars",
		UsePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "avatars", c.bucket)
	assert.Equal(t, "eu-central-1", lo.Region)
	assert.NotNil(t, lo.Credentials)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(applied.BaseEndpoint))
	assert.True(t, applied.UsePathStyle)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = Dial(context.Background(), Options{Bucket: "avatars"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load aws config")
}
