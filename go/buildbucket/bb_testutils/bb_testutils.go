// Package bb_testutils provides a mocked buildbucket client for tests. Each
// Mock* method registers the exact request/response dialogue which the
// corresponding client method produces.
package bb_testutils

import (
	"encoding/json"
	"testing"

	assert "github.com/stretchr/testify/require"

	"go.skia.org/bbclient/go/auth"
	"go.skia.org/bbclient/go/buildbucket"
	"go.skia.org/bbclient/go/jsonutils"
	"go.skia.org/bbclient/go/mockhttpclient"
)

const (
	FAKE_URL        = "https://buildbucket-test.appspot.com"
	FAKE_TOKEN      = "fake-access-token"
	FAKE_REQUEST_ID = "fake-request-id"
)

// MockClient is a buildbucket client whose HTTP transport is a URLMock.
type MockClient struct {
	*buildbucket.Client
	Mock *mockhttpclient.URLMock
	t    *testing.T
}

// NewMockClient returns a MockClient with a deterministic request ID
// generator and a static access token.
func NewMockClient(t *testing.T) *MockClient {
	m := mockhttpclient.NewURLMock()
	c := buildbucket.NewTestingClient(m.Client(), auth.NewStaticTokenProvider(FAKE_TOKEN), FAKE_URL, func() string {
		return FAKE_REQUEST_ID
	})
	return &MockClient{
		Client: c,
		Mock:   m,
		t:      t,
	}
}

// mockRPC registers a single dialogue for the given method: the client is
// expected to POST the JSON encoding of req with the standard headers, and
// receives the JSON encoding of resp behind the anti-XSSI preamble.
func (c *MockClient) mockRPC(method string, req, resp interface{}) {
	reqBytes, err := json.Marshal(req)
	assert.NoError(c.t, err)
	respBytes, err := json.Marshal(resp)
	assert.NoError(c.t, err)
	md := mockhttpclient.MockPostDialogue("application/json", reqBytes, append([]byte(buildbucket.RESPONSE_PREAMBLE), respBytes...))
	md.RequestHeader("Accept", "application/json")
	md.RequestHeader("Authorization", "Bearer "+FAKE_TOKEN)
	c.Mock.MockOnce(FAKE_URL+"/"+method, md)
}

// MockRPCError registers a dialogue for the given method whose response has
// the given status code and raw body.
func (c *MockClient) MockRPCError(method string, req interface{}, statusCode int, body string) {
	reqBytes, err := json.Marshal(req)
	assert.NoError(c.t, err)
	md := mockhttpclient.MockPostError("application/json", reqBytes, statusCode, []byte(body))
	c.Mock.MockOnce(FAKE_URL+"/"+method, md)
}

// MockGetBuild mocks a GetBuild call for the given build ID.
func (c *MockClient) MockGetBuild(buildID int64, rv *buildbucket.Build) {
	c.mockRPC(buildbucket.METHOD_GET_BUILD, &buildbucket.GetBuildRequest{
		Id: jsonutils.Number(buildID),
	}, rv)
}

// MockCancelBuild mocks a CancelBuild call for the given build ID.
func (c *MockClient) MockCancelBuild(buildID int64, summaryMarkdown string, rv *buildbucket.Build) {
	c.mockRPC(buildbucket.METHOD_CANCEL_BUILD, &buildbucket.CancelBuildRequest{
		Id:              jsonutils.Number(buildID),
		SummaryMarkdown: summaryMarkdown,
	}, rv)
}

// MockScheduleBuild mocks a ScheduleBuild call for the given request. If the
// request has no RequestId, the one which the client will generate is
// assumed.
func (c *MockClient) MockScheduleBuild(req *buildbucket.ScheduleBuildRequest, rv *buildbucket.Build) {
	if req.RequestId == "" {
		cpy := *req
		cpy.RequestId = FAKE_REQUEST_ID
		req = &cpy
	}
	c.mockRPC(buildbucket.METHOD_SCHEDULE_BUILD, req, rv)
}

// MockSearchBuilds mocks one page of SearchBuilds results for the given
// predicate, as requested by Search.
func (c *MockClient) MockSearchBuilds(pred *buildbucket.BuildPredicate, builds []*buildbucket.Build) {
	c.mockRPC(buildbucket.METHOD_SEARCH_BUILDS, &buildbucket.SearchBuildsRequest{
		Predicate: pred,
	}, &buildbucket.SearchBuildsResponse{
		Builds: builds,
	})
}

// MockSearchBuildsPage mocks a single SearchBuilds call with explicit paging
// fields.
func (c *MockClient) MockSearchBuildsPage(req *buildbucket.SearchBuildsRequest, resp *buildbucket.SearchBuildsResponse) {
	c.mockRPC(buildbucket.METHOD_SEARCH_BUILDS, req, resp)
}

// MockBatch mocks a Batch call.
func (c *MockClient) MockBatch(req *buildbucket.BatchRequest, resp *buildbucket.BatchResponse) {
	c.mockRPC(buildbucket.METHOD_BATCH, req, resp)
}

// MockScheduleBuilds mocks the Batch call made by ScheduleBuilds.
func (c *MockClient) MockScheduleBuilds(builds []string, buildsToTags map[string]map[string]string, issue, patchset int64, gerritUrl, repo, bbProject, bbBucket string, resp *buildbucket.BatchResponse) {
	req := buildbucket.ScheduleBuildsRequest(builds, buildsToTags, issue, patchset, gerritUrl, repo, bbProject, bbBucket)
	c.MockBatch(req, resp)
}

// MockCancelBuilds mocks the Batch call made by CancelBuilds.
func (c *MockClient) MockCancelBuilds(buildIDs []int64, summaryMarkdown string, resp *buildbucket.BatchResponse) {
	req := buildbucket.CancelBuildsRequest(buildIDs, summaryMarkdown)
	c.MockBatch(req, resp)
}

// AssertEmpty asserts that all mocked dialogues have been used.
func (c *MockClient) AssertEmpty() {
	assert.True(c.t, c.Mock.Empty(), "Unused mocks: %v", c.Mock.List())
}
