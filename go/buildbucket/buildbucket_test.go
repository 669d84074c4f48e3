package buildbucket_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"go.skia.org/bbclient/go/buildbucket"
	"go.skia.org/bbclient/go/buildbucket/bb_testutils"
	"go.skia.org/bbclient/go/jsonutils"
	"go.skia.org/bbclient/go/mockhttpclient"
	"go.skia.org/bbclient/go/testutils"
	"go.skia.org/bbclient/go/testutils/unittest"
)

func ts(t time.Time) *jsonutils.Time {
	rv := jsonutils.Time(t.UTC())
	return &rv
}

func fakeBuild(id int64) *buildbucket.Build {
	return &buildbucket.Build{
		Id: jsonutils.Number(id),
		Builder: &buildbucket.BuilderID{
			Project: "fake",
			Bucket:  "skia.primary",
			Builder: "Housekeeper-OnDemand-Presubmit",
		},
		CreatedBy:  "some@user.com",
		CreateTime: ts(time.Unix(1553792903, 0)),
		EndTime:    ts(time.Unix(1553793030, 0)),
		Input: &buildbucket.BuildInput{
			GerritChanges: []*buildbucket.GerritChange{
				{
					Host:     "skia-review.googlesource.com",
					Project:  "skia",
					Change:   12345,
					Patchset: 1,
				},
			},
		},
		Status: buildbucket.STATUS_SUCCESS,
	}
}

func TestGetBuild(t *testing.T) {
	unittest.SmallTest(t)

	id := int64(12345)
	c := bb_testutils.NewMockClient(t)

	expect := fakeBuild(id)
	c.MockGetBuild(id, expect)
	b, err := c.GetBuild(context.TODO(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	testutils.AssertDeepEqual(t, expect, b)
	c.AssertEmpty()
}

// The server encodes build IDs as JSON strings; they must decode to int64.
func TestGetBuildStringID(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	respBody := []byte(buildbucket.RESPONSE_PREAMBLE + `{"id":"123","builder":{"project":"fake","bucket":"skia.primary","builder":"Fake-Builder"},"status":"SCHEDULED"}`)
	md := mockhttpclient.MockPostDialogue("application/json", []byte(`{"id":1234}`), respBody)
	c.Mock.MockOnce(bb_testutils.FAKE_URL+"/GetBuild", md)

	b, err := c.GetBuild(context.TODO(), 1234)
	require.NoError(t, err)
	require.Equal(t, jsonutils.Number(123), b.Id)
	require.Equal(t, buildbucket.STATUS_SCHEDULED, b.Status)
}

func TestScheduleBuild(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	req := &buildbucket.ScheduleBuildRequest{
		Builder: &buildbucket.BuilderID{
			Project: "fake",
			Bucket:  "skia.primary",
			Builder: "Housekeeper-OnDemand-Presubmit",
		},
		Tags: []*buildbucket.StringPair{
			{Key: "triggered_by", Value: "skcq"},
		},
	}
	expect := fakeBuild(12345)
	// The client fills in the request ID; the mock asserts on the resulting
	// request body.
	c.MockScheduleBuild(req, expect)
	b, err := c.ScheduleBuild(context.TODO(), req)
	require.NoError(t, err)
	testutils.AssertDeepEqual(t, expect, b)
	// The caller's request is not mutated.
	require.Equal(t, "", req.RequestId)
	c.AssertEmpty()
}

func TestCancelBuild(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	expect := fakeBuild(12345)
	expect.Status = buildbucket.STATUS_CANCELED
	c.MockCancelBuild(12345, "Cancelling for testing reasons", expect)
	b, err := c.CancelBuild(context.TODO(), 12345, "Cancelling for testing reasons")
	require.NoError(t, err)
	testutils.AssertDeepEqual(t, expect, b)
	c.AssertEmpty()
}

func TestSearchPagination(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	pred := &buildbucket.BuildPredicate{
		Builder: &buildbucket.BuilderID{
			Project: "fake",
			Bucket:  "skia.primary",
			Builder: "Housekeeper-OnDemand-Presubmit",
		},
	}
	b1 := fakeBuild(1)
	b2 := fakeBuild(2)
	c.MockSearchBuildsPage(&buildbucket.SearchBuildsRequest{
		Predicate: pred,
	}, &buildbucket.SearchBuildsResponse{
		Builds:        []*buildbucket.Build{b1},
		NextPageToken: "next-page",
	})
	c.MockSearchBuildsPage(&buildbucket.SearchBuildsRequest{
		Predicate: pred,
		PageToken: "next-page",
	}, &buildbucket.SearchBuildsResponse{
		Builds: []*buildbucket.Build{b2},
	})
	builds, err := c.Search(context.TODO(), pred)
	require.NoError(t, err)
	require.Equal(t, 2, len(builds))
	testutils.AssertDeepEqual(t, b1, builds[0])
	testutils.AssertDeepEqual(t, b2, builds[1])
	c.AssertEmpty()
}

func TestGetTrybotsForCL(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	expect := fakeBuild(12345)
	c.MockSearchBuilds(&buildbucket.BuildPredicate{
		GerritChanges: []*buildbucket.GerritChange{
			{
				Host:     "skia-review.googlesource.com",
				Change:   12345,
				Patchset: 1,
			},
		},
	}, []*buildbucket.Build{expect})
	b, err := c.GetTrybotsForCL(context.TODO(), 12345, 1, "https://skia-review.googlesource.com", nil)
	require.NoError(t, err)
	require.Equal(t, 1, len(b))
	testutils.AssertDeepEqual(t, expect, b[0])
	c.AssertEmpty()
}

func TestScheduleBuilds(t *testing.T) {
	unittest.SmallTest(t)

	builderName := "Housekeeper-OnDemand-Presubmit"
	gerritHost := "skia-review.googlesource.com"
	repo := "skia"
	change := int64(32423)
	patchset := int64(1)
	tagName := "test-tag-name"
	tagValue := "test-tag-value"

	c := bb_testutils.NewMockClient(t)

	expectBuild := fakeBuild(12345)
	expectResponse := &buildbucket.BatchResponse{
		Responses: []*buildbucket.BatchResponseEntry{
			{
				ScheduleBuild: expectBuild,
			},
		},
	}

	buildsToTags := map[string]map[string]string{
		builderName: {tagName: tagValue},
	}
	c.MockScheduleBuilds([]string{builderName}, buildsToTags, change, patchset, gerritHost, repo, "fake", "skia.primary", expectResponse)
	builds, err := c.ScheduleBuilds(context.TODO(), []string{builderName}, buildsToTags, change, patchset, gerritHost, repo, "fake", "skia.primary")
	require.NoError(t, err)
	require.Equal(t, 1, len(builds))
	testutils.AssertDeepEqual(t, expectBuild, builds[0])
	c.AssertEmpty()
}

func TestCancelBuilds(t *testing.T) {
	unittest.SmallTest(t)

	buildID := int64(12345)
	summaryMarkdown := "Cancelling for testing reasons"

	c := bb_testutils.NewMockClient(t)

	expectBuild := fakeBuild(buildID)
	expectBuild.Status = buildbucket.STATUS_CANCELED
	expectResponse := &buildbucket.BatchResponse{
		Responses: []*buildbucket.BatchResponseEntry{
			{
				CancelBuild: expectBuild,
			},
		},
	}

	c.MockCancelBuilds([]int64{buildID}, summaryMarkdown, expectResponse)
	builds, err := c.CancelBuilds(context.TODO(), []int64{buildID}, summaryMarkdown)
	require.NoError(t, err)
	require.Equal(t, 1, len(builds))
	testutils.AssertDeepEqual(t, expectBuild, builds[0])
	c.AssertEmpty()
}

func TestCancelBuildsPartialFailure(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	expectBuild := fakeBuild(1)
	expectBuild.Status = buildbucket.STATUS_CANCELED
	resp := &buildbucket.BatchResponse{
		Responses: []*buildbucket.BatchResponseEntry{
			{
				CancelBuild: expectBuild,
			},
			{
				Error: &buildbucket.BatchResponseError{
					Code:    5,
					Message: "build not found",
				},
			},
		},
	}
	c.MockCancelBuilds([]int64{1, 2}, "cleanup", resp)
	builds, err := c.CancelBuilds(context.TODO(), []int64{1, 2}, "cleanup")
	require.Error(t, err)
	require.Contains(t, err.Error(), "build not found")
	require.Nil(t, builds)
	c.AssertEmpty()
}

// Batch returns the envelope as-is, including per-entry errors.
func TestBatch(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	req := &buildbucket.BatchRequest{
		Requests: []*buildbucket.BatchRequestEntry{
			{
				GetBuild: &buildbucket.GetBuildRequest{
					Id: 12345,
				},
			},
		},
	}
	expect := &buildbucket.BatchResponse{
		Responses: []*buildbucket.BatchResponseEntry{
			{
				GetBuild: fakeBuild(12345),
			},
		},
	}
	c.MockBatch(req, expect)
	resp, err := c.Batch(context.TODO(), req)
	require.NoError(t, err)
	require.Equal(t, 1, len(resp.Responses))
	require.Equal(t, buildbucket.STATUS_SUCCESS, resp.Responses[0].GetBuild.Status)
	testutils.AssertDeepEqual(t, expect, resp)
	c.AssertEmpty()
}

func TestServiceError(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	c.MockRPCError(buildbucket.METHOD_GET_BUILD, &buildbucket.GetBuildRequest{
		Id: 12345,
	}, http.StatusForbidden, "Error")
	b, err := c.GetBuild(context.TODO(), 12345)
	require.Nil(t, b)
	var serviceErr *buildbucket.ServiceError
	require.True(t, errors.As(err, &serviceErr))
	require.Equal(t, http.StatusForbidden, serviceErr.StatusCode)
	require.Equal(t, "Error", serviceErr.Body)
}

func TestMissingPreamble(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	// A valid JSON body without the anti-XSSI preamble is rejected before
	// parsing.
	md := mockhttpclient.MockPostDialogue("application/json", mockhttpclient.DONT_CARE_REQUEST, []byte(`{"id":"123"}`))
	c.Mock.MockOnce(bb_testutils.FAKE_URL+"/GetBuild", md)
	b, err := c.GetBuild(context.TODO(), 123)
	require.Nil(t, b)
	var decodeErr *buildbucket.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	require.Contains(t, err.Error(), "preamble")
}

func TestDecodeError(t *testing.T) {
	unittest.SmallTest(t)

	c := bb_testutils.NewMockClient(t)
	md := mockhttpclient.MockPostDialogue("application/json", mockhttpclient.DONT_CARE_REQUEST, []byte(buildbucket.RESPONSE_PREAMBLE+"not json"))
	c.Mock.MockOnce(bb_testutils.FAKE_URL+"/GetBuild", md)
	b, err := c.GetBuild(context.TODO(), 123)
	require.Nil(t, b)
	var decodeErr *buildbucket.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	var serviceErr *buildbucket.ServiceError
	require.False(t, errors.As(err, &serviceErr))
}

type failingTokenProvider struct {
	err error
}

func (p *failingTokenProvider) CreateAccessToken(ctx context.Context, scopes ...string) (*oauth2.Token, error) {
	return nil, p.err
}

func TestTokenErrorPassthrough(t *testing.T) {
	unittest.SmallTest(t)

	tokenErr := fmt.Errorf("no token for you")
	c := buildbucket.NewClient(mockhttpclient.NewURLMock().Client(), &failingTokenProvider{err: tokenErr}, bb_testutils.FAKE_URL)
	b, err := c.GetBuild(context.TODO(), 123)
	require.Nil(t, b)
	// The provider's error is propagated unchanged.
	require.Equal(t, tokenErr, err)
}

// Each request variant must survive an encode/decode round trip.
func TestRequestRoundTrip(t *testing.T) {
	unittest.SmallTest(t)

	builder := &buildbucket.BuilderID{
		Project: "fake",
		Bucket:  "skia.primary",
		Builder: "Fake-Builder",
	}
	schedule := &buildbucket.ScheduleBuildRequest{
		RequestId: "req-id",
		Builder:   builder,
		Properties: map[string]interface{}{
			"category": "cq",
		},
		GerritChanges: []*buildbucket.GerritChange{
			{
				Host:     "skia-review.googlesource.com",
				Project:  "skia",
				Change:   12345,
				Patchset: 1,
			},
		},
		Tags: []*buildbucket.StringPair{
			{Key: "triggered_by", Value: "skcq"},
		},
	}
	search := &buildbucket.SearchBuildsRequest{
		Predicate: &buildbucket.BuildPredicate{
			Builder:   builder,
			Status:    buildbucket.STATUS_STARTED,
			CreatedBy: "some@user.com",
		},
		PageSize:  100,
		PageToken: "token",
	}
	test := func(req, rv interface{}) {
		b, err := json.Marshal(req)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, rv))
		testutils.AssertDeepEqual(t, req, rv)
	}
	test(schedule, &buildbucket.ScheduleBuildRequest{})
	test(&buildbucket.CancelBuildRequest{Id: 123, SummaryMarkdown: "why"}, &buildbucket.CancelBuildRequest{})
	test(&buildbucket.GetBuildRequest{Id: 123}, &buildbucket.GetBuildRequest{})
	test(search, &buildbucket.SearchBuildsRequest{})
	test(&buildbucket.BatchRequest{
		Requests: []*buildbucket.BatchRequestEntry{
			{ScheduleBuild: schedule},
			{GetBuild: &buildbucket.GetBuildRequest{Id: 123}},
		},
	}, &buildbucket.BatchRequest{})
}

func TestBuildURL(t *testing.T) {
	unittest.SmallTest(t)
	require.Equal(t, "https://cr-buildbucket.appspot.com/build/12345", buildbucket.BuildURL(buildbucket.DEFAULT_HOST, 12345))
}
