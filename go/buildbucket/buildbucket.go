// Package buildbucket provides a client for the buildbucket build
// orchestration service's JSON API.
package buildbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"go.skia.org/bbclient/go/auth"
	"go.skia.org/bbclient/go/jsonutils"
	"go.skia.org/bbclient/go/util"
)

const (
	BUILD_URL_TMPL = "%s/build/%d"
	DEFAULT_HOST   = "https://cr-buildbucket.appspot.com"

	// RESPONSE_PREAMBLE is prepended by the server to every JSON response
	// body to prevent it from being directly executable as script content.
	// It must be stripped before parsing.
	RESPONSE_PREAMBLE = ")]}'\n"

	// RPC method names. Each is the literal path segment appended to the
	// base URL.
	METHOD_SCHEDULE_BUILD = "ScheduleBuild"
	METHOD_CANCEL_BUILD   = "CancelBuild"
	METHOD_GET_BUILD      = "GetBuild"
	METHOD_SEARCH_BUILDS  = "SearchBuilds"
	METHOD_BATCH          = "Batch"
)

var (
	DEFAULT_SCOPES = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
)

type BuildBucketInterface interface {
	// ScheduleBuild schedules a new build. If the request's RequestId is
	// empty, one is generated so that the server can dedupe retries.
	ScheduleBuild(ctx context.Context, req *ScheduleBuildRequest) (*Build, error)
	// CancelBuild cancels the specified build with the specified
	// SummaryMarkdown.
	CancelBuild(ctx context.Context, buildID int64, summaryMarkdown string) (*Build, error)
	// CancelBuilds cancels the specified buildIDs with the specified
	// summaryMarkdown. Builds are cancelled with one batch request
	// to buildbucket.
	CancelBuilds(ctx context.Context, buildIDs []int64, summaryMarkdown string) ([]*Build, error)
	// GetBuild retrieves the build with the given ID.
	GetBuild(ctx context.Context, buildID int64) (*Build, error)
	// SearchBuilds retrieves one page of Builds matching the request.
	SearchBuilds(ctx context.Context, req *SearchBuildsRequest) (*SearchBuildsResponse, error)
	// Search retrieves all Builds which match the given criteria, following
	// pagination.
	Search(ctx context.Context, pred *BuildPredicate) ([]*Build, error)
	// GetTrybotsForCL retrieves trybot results for the given CL using the
	// optional tags.
	GetTrybotsForCL(ctx context.Context, issue, patchset int64, gerritUrl string, tags map[string]string) ([]*Build, error)
	// ScheduleBuilds schedules the specified builds on the given CL. Builds
	// are scheduled with one batch request to buildbucket.
	// builds is the slice of which builds should be scheduled by buildbucket.
	// Eg: ["Infra-PerCommit-Race", "Infra-PerCommit-Small"].
	// buildsToTags is the map of which tags to use when scheduling
	// some of the builds. Eg: {"Infra-PerCommit-Race": {"triggered_by": "skcq"}}
	// means that the Infra-PerCommit-Race build should be scheduled with the
	// "triggered_by: skcq" tag.
	ScheduleBuilds(ctx context.Context, builds []string, buildsToTags map[string]map[string]string, issue, patchset int64, gerritUrl, repo, bbProject, bbBucket string) ([]*Build, error)
	// Batch sends the given sub-requests in one call and returns the
	// response envelope as-is; per-entry errors are not inspected.
	Batch(ctx context.Context, req *BatchRequest) (*BatchResponse, error)
}

// Client is used for interacting with the buildbucket API. It holds no
// mutable state, so it is safe for concurrent use.
type Client struct {
	client        *http.Client
	tokenProvider auth.TokenProvider
	url           string
	newRequestID  func() string
}

// NewClient returns a Client which sends requests via the given http.Client
// and authenticates them with tokens from the given TokenProvider. If url is
// empty, DEFAULT_HOST is used.
func NewClient(c *http.Client, tp auth.TokenProvider, url string) *Client {
	if url == "" {
		url = DEFAULT_HOST
	}
	return &Client{
		client:        c,
		tokenProvider: tp,
		url:           url,
		newRequestID: func() string {
			return uuid.New().String()
		},
	}
}

// NewTestingClient is like NewClient but uses the given request ID generator
// so that tests produce deterministic request bodies.
func NewTestingClient(c *http.Client, tp auth.TokenProvider, url string, newRequestID func() string) *Client {
	rv := NewClient(c, tp, url)
	rv.newRequestID = newRequestID
	return rv
}

// invoke issues a single RPC: it POSTs the JSON encoding of req to
// <base-url>/<method> with a bearer token from the token provider, strips
// the anti-XSSI preamble from the response and decodes the payload into rv.
// Non-2xx responses produce a *ServiceError; undecodable 2xx responses
// produce a *DecodeError; token provider failures are returned unchanged.
func (c *Client) invoke(ctx context.Context, method string, req, rv interface{}) error {
	tok, err := c.tokenProvider.CreateAccessToken(ctx, DEFAULT_SCOPES...)
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "Failed to encode %s request", method)
	}
	url := c.url + "/" + method
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "Failed to create request for %s", url)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "Failed to POST %s", url)
	}
	defer util.Close(resp.Body)
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "Failed to read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceError{
			StatusCode: resp.StatusCode,
			Body:       string(b),
		}
	}
	text := string(b)
	if !strings.HasPrefix(text, RESPONSE_PREAMBLE) {
		return &DecodeError{
			Err: errors.Errorf("Response from %s is missing the %q preamble", url, RESPONSE_PREAMBLE),
		}
	}
	if err := json.Unmarshal([]byte(text[len(RESPONSE_PREAMBLE):]), rv); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

// ScheduleBuild implements the BuildBucketInterface.
func (c *Client) ScheduleBuild(ctx context.Context, req *ScheduleBuildRequest) (*Build, error) {
	if req.RequestId == "" {
		// Don't mutate the caller's request.
		cpy := *req
		cpy.RequestId = c.newRequestID()
		req = &cpy
	}
	rv := new(Build)
	if err := c.invoke(ctx, METHOD_SCHEDULE_BUILD, req, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// CancelBuild implements the BuildBucketInterface.
func (c *Client) CancelBuild(ctx context.Context, buildID int64, summaryMarkdown string) (*Build, error) {
	rv := new(Build)
	if err := c.invoke(ctx, METHOD_CANCEL_BUILD, &CancelBuildRequest{
		Id:              jsonutils.Number(buildID),
		SummaryMarkdown: summaryMarkdown,
	}, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// GetBuild implements the BuildBucketInterface.
func (c *Client) GetBuild(ctx context.Context, buildID int64) (*Build, error) {
	rv := new(Build)
	if err := c.invoke(ctx, METHOD_GET_BUILD, &GetBuildRequest{
		Id: jsonutils.Number(buildID),
	}, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// SearchBuilds implements the BuildBucketInterface.
func (c *Client) SearchBuilds(ctx context.Context, req *SearchBuildsRequest) (*SearchBuildsResponse, error) {
	rv := new(SearchBuildsResponse)
	if err := c.invoke(ctx, METHOD_SEARCH_BUILDS, req, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// Batch implements the BuildBucketInterface.
func (c *Client) Batch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	rv := new(BatchResponse)
	if err := c.invoke(ctx, METHOD_BATCH, req, rv); err != nil {
		return nil, err
	}
	return rv, nil
}

// Search implements the BuildBucketInterface.
func (c *Client) Search(ctx context.Context, pred *BuildPredicate) ([]*Build, error) {
	rv := []*Build{}
	cursor := ""
	for {
		resp, err := c.SearchBuilds(ctx, &SearchBuildsRequest{
			PageToken: cursor,
			Predicate: pred,
		})
		if err != nil {
			return nil, err
		}
		if resp == nil {
			break
		}
		rv = append(rv, resp.Builds...)
		cursor = resp.NextPageToken
		if cursor == "" {
			break
		}
	}
	return rv, nil
}

// GetTrybotsForCL implements the BuildBucketInterface.
func (c *Client) GetTrybotsForCL(ctx context.Context, issue, patchset int64, gerritUrl string, tags map[string]string) ([]*Build, error) {
	pred, err := GetTrybotsForCLPredicate(issue, patchset, gerritUrl, tags)
	if err != nil {
		return nil, err
	}
	return c.Search(ctx, pred)
}

// ScheduleBuilds implements the BuildBucketInterface.
func (c *Client) ScheduleBuilds(ctx context.Context, builds []string, buildsToTags map[string]map[string]string, issue, patchset int64, gerritUrl, repo, bbProject, bbBucket string) ([]*Build, error) {
	req := ScheduleBuildsRequest(builds, buildsToTags, issue, patchset, gerritUrl, repo, bbProject, bbBucket)
	resp, err := c.Batch(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "Could not schedule builds on buildbucket")
	}
	if len(resp.Responses) != len(builds) {
		return nil, errors.Errorf("Buildbucket gave %d responses for %d builders", len(resp.Responses), len(builds))
	}

	respBuilds := []*Build{}
	var rvErr error
	for _, r := range resp.Responses {
		if r.Error != nil {
			rvErr = multierror.Append(rvErr, errors.Errorf("Failed to schedule build: %d %s", r.Error.Code, r.Error.Message))
			continue
		}
		respBuilds = append(respBuilds, r.ScheduleBuild)
	}
	if rvErr != nil {
		return nil, rvErr
	}
	return respBuilds, nil
}

// CancelBuilds implements the BuildBucketInterface.
func (c *Client) CancelBuilds(ctx context.Context, buildIDs []int64, summaryMarkdown string) ([]*Build, error) {
	req := CancelBuildsRequest(buildIDs, summaryMarkdown)
	resp, err := c.Batch(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "Could not cancel builds on buildbucket")
	}
	if len(resp.Responses) != len(buildIDs) {
		return nil, errors.Errorf("Buildbucket gave %d responses for %d builds", len(resp.Responses), len(buildIDs))
	}

	respBuilds := []*Build{}
	var rvErr error
	for _, r := range resp.Responses {
		if r.Error != nil {
			rvErr = multierror.Append(rvErr, errors.Errorf("Failed to cancel build: %d %s", r.Error.Code, r.Error.Message))
			continue
		}
		respBuilds = append(respBuilds, r.CancelBuild)
	}
	if rvErr != nil {
		return nil, rvErr
	}
	return respBuilds, nil
}

// ScheduleBuildsRequest creates the BatchRequest used by ScheduleBuilds.
// Exposed so that tests can construct the exact request the client sends.
func ScheduleBuildsRequest(builds []string, buildsToTags map[string]map[string]string, issue, patchset int64, gerritUrl, repo, bbProject, bbBucket string) *BatchRequest {
	requests := []*BatchRequestEntry{}
	for _, b := range builds {
		requests = append(requests, &BatchRequestEntry{
			ScheduleBuild: &ScheduleBuildRequest{
				Builder: &BuilderID{
					Project: bbProject,
					Bucket:  bbBucket,
					Builder: b,
				},
				GerritChanges: []*GerritChange{
					{
						Host:     gerritUrl,
						Project:  repo,
						Change:   jsonutils.Number(issue),
						Patchset: jsonutils.Number(patchset),
					},
				},
				Tags: sortedStringPairs(buildsToTags[b]),
			},
		})
	}
	return &BatchRequest{
		Requests: requests,
	}
}

// CancelBuildsRequest creates the BatchRequest used by CancelBuilds.
func CancelBuildsRequest(buildIDs []int64, summaryMarkdown string) *BatchRequest {
	requests := []*BatchRequestEntry{}
	for _, id := range buildIDs {
		requests = append(requests, &BatchRequestEntry{
			CancelBuild: &CancelBuildRequest{
				Id:              jsonutils.Number(id),
				SummaryMarkdown: summaryMarkdown,
			},
		})
	}
	return &BatchRequest{
		Requests: requests,
	}
}

// GetTrybotsForCLPredicate returns a *BuildPredicate which searches for
// trybots from the given CL.
func GetTrybotsForCLPredicate(issue, patchset int64, gerritUrl string, tags map[string]string) (*BuildPredicate, error) {
	u, err := url.Parse(gerritUrl)
	if err != nil {
		return nil, err
	}
	return &BuildPredicate{
		GerritChanges: []*GerritChange{
			{
				Host:     u.Host,
				Change:   jsonutils.Number(issue),
				Patchset: jsonutils.Number(patchset),
			},
		},
		Tags: sortedStringPairs(tags),
	}, nil
}

// sortedStringPairs converts a tag map to a StringPair slice, sorted by key
// so that encoded requests are deterministic.
func sortedStringPairs(tags map[string]string) []*StringPair {
	rv := make([]*StringPair, 0, len(tags))
	for k, v := range tags {
		rv = append(rv, &StringPair{
			Key:   k,
			Value: v,
		})
	}
	sort.Slice(rv, func(i, j int) bool {
		return rv[i].Key < rv[j].Key
	})
	return rv
}

// BuildURL returns the URL of the build page for the given build ID.
func BuildURL(host string, buildID int64) string {
	return fmt.Sprintf(BUILD_URL_TMPL, host, buildID)
}

// Make sure Client fulfills the BuildBucketInterface interface.
var _ BuildBucketInterface = (*Client)(nil)
