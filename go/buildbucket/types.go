package buildbucket

import (
	"go.skia.org/bbclient/go/jsonutils"
)

// Status describes where a build is in its lifecycle.
type Status string

const (
	STATUS_SCHEDULED     Status = "SCHEDULED"
	STATUS_STARTED       Status = "STARTED"
	STATUS_SUCCESS       Status = "SUCCESS"
	STATUS_FAILURE       Status = "FAILURE"
	STATUS_CANCELED      Status = "CANCELED"
	STATUS_INFRA_FAILURE Status = "INFRA_FAILURE"
)

// IsTerminal returns true iff the status indicates that the build is
// finished.
func (s Status) IsTerminal() bool {
	return s == STATUS_SUCCESS || s == STATUS_FAILURE || s == STATUS_CANCELED || s == STATUS_INFRA_FAILURE
}

// BuilderID identifies a build configuration: the (project, bucket, builder)
// triple.
type BuilderID struct {
	Project string `json:"project"`
	Bucket  string `json:"bucket"`
	Builder string `json:"builder"`
}

// StringPair is a key/value pair, eg. a build tag.
type StringPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GerritChange identifies a patchset on a Gerrit CL.
type GerritChange struct {
	Host     string           `json:"host,omitempty"`
	Project  string           `json:"project,omitempty"`
	Change   jsonutils.Number `json:"change,omitempty"`
	Patchset jsonutils.Number `json:"patchset,omitempty"`
}

// BuildInput is the free-form input to a build.
type BuildInput struct {
	Properties    map[string]interface{} `json:"properties,omitempty"`
	GerritChanges []*GerritChange        `json:"gerritChanges,omitempty"`
}

// BuildOutput is the free-form output of a build.
type BuildOutput struct {
	Properties      map[string]interface{} `json:"properties,omitempty"`
	SummaryMarkdown string                 `json:"summaryMarkdown,omitempty"`
}

// Build describes a single build. Note that the server encodes build IDs as
// JSON strings, hence jsonutils.Number.
type Build struct {
	Id         jsonutils.Number `json:"id"`
	Builder    *BuilderID       `json:"builder,omitempty"`
	Number     int              `json:"number,omitempty"`
	CreatedBy  string           `json:"createdBy,omitempty"`
	CanceledBy string           `json:"canceledBy,omitempty"`
	CreateTime *jsonutils.Time  `json:"createTime,omitempty"`
	StartTime  *jsonutils.Time  `json:"startTime,omitempty"`
	EndTime    *jsonutils.Time  `json:"endTime,omitempty"`
	Status     Status           `json:"status,omitempty"`
	Tags       []*StringPair    `json:"tags,omitempty"`
	Input      *BuildInput      `json:"input,omitempty"`
	Output     *BuildOutput     `json:"output,omitempty"`
}

// ScheduleBuildRequest asks the server to schedule a new build. If RequestId
// is set, the server uses it to dedupe repeated schedule attempts.
type ScheduleBuildRequest struct {
	RequestId     string                 `json:"requestId,omitempty"`
	Builder       *BuilderID             `json:"builder"`
	Properties    map[string]interface{} `json:"properties,omitempty"`
	GerritChanges []*GerritChange        `json:"gerritChanges,omitempty"`
	Tags          []*StringPair          `json:"tags,omitempty"`
}

// CancelBuildRequest asks the server to cancel the given build.
type CancelBuildRequest struct {
	Id              jsonutils.Number `json:"id"`
	SummaryMarkdown string           `json:"summaryMarkdown,omitempty"`
}

// GetBuildRequest retrieves a single build by ID.
type GetBuildRequest struct {
	Id jsonutils.Number `json:"id"`
}

// BuildPredicate describes search criteria for SearchBuilds.
type BuildPredicate struct {
	Builder       *BuilderID      `json:"builder,omitempty"`
	Status        Status          `json:"status,omitempty"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	GerritChanges []*GerritChange `json:"gerritChanges,omitempty"`
	Tags          []*StringPair   `json:"tags,omitempty"`
}

// SearchBuildsRequest retrieves builds matching a predicate, one page at a
// time.
type SearchBuildsRequest struct {
	Predicate *BuildPredicate `json:"predicate,omitempty"`
	PageSize  int             `json:"pageSize,omitempty"`
	PageToken string          `json:"pageToken,omitempty"`
}

// SearchBuildsResponse is one page of search results.
type SearchBuildsResponse struct {
	Builds        []*Build `json:"builds,omitempty"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

// BatchRequestEntry is a tagged union: exactly one field must be set.
type BatchRequestEntry struct {
	ScheduleBuild *ScheduleBuildRequest `json:"scheduleBuild,omitempty"`
	CancelBuild   *CancelBuildRequest   `json:"cancelBuild,omitempty"`
	GetBuild      *GetBuildRequest      `json:"getBuild,omitempty"`
	SearchBuilds  *SearchBuildsRequest  `json:"searchBuilds,omitempty"`
}

// BatchRequest bundles multiple sub-requests into one call.
type BatchRequest struct {
	Requests []*BatchRequestEntry `json:"requests,omitempty"`
}

// BatchResponseError reports the failure of a single batch entry.
type BatchResponseError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// BatchResponseEntry is a tagged union mirroring BatchRequestEntry; the
// field matching the sub-request is set on success, Error on failure.
type BatchResponseEntry struct {
	ScheduleBuild *Build                `json:"scheduleBuild,omitempty"`
	CancelBuild   *Build                `json:"cancelBuild,omitempty"`
	GetBuild      *Build                `json:"getBuild,omitempty"`
	SearchBuilds  *SearchBuildsResponse `json:"searchBuilds,omitempty"`
	Error         *BatchResponseError   `json:"error,omitempty"`
}

// BatchResponse carries one entry per sub-request, in order.
type BatchResponse struct {
	Responses []*BatchResponseEntry `json:"responses,omitempty"`
}
