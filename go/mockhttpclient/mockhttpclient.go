// Package mockhttpclient provides a mocked implementation of http.Client
// which responds to requests based on scripted dialogues.
package mockhttpclient

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
)

// DONT_CARE_REQUEST can be used as the request payload of a MockDialogue to
// indicate that the request body should not be checked.
var DONT_CARE_REQUEST = []byte{0xde, 0xad, 0xbe, 0xef}

// MockDialogue mocks a single HTTP request and response. It expects a
// request with a given method, content type, headers, and body, and scripts
// the status code and body of the response.
type MockDialogue struct {
	requestMethod  string
	requestType    string
	requestHeaders map[string][]string
	requestPayload []byte

	responseStatus  string
	responseCode    int
	responsePayload []byte
}

// RequestHeader adds an expectation that the request carries the given
// header with exactly the given values.
func (md *MockDialogue) RequestHeader(key string, values ...string) {
	if md.requestHeaders == nil {
		md.requestHeaders = map[string][]string{}
	}
	md.requestHeaders[key] = values
}

// ResponseStatus overrides the scripted response status (default 200 OK).
func (md *MockDialogue) ResponseStatus(code int, status string) {
	md.responseCode = code
	md.responseStatus = status
}

// GetResponse validates the given request against the dialogue's
// expectations and returns the scripted response, or an error describing the
// mismatch.
func (md *MockDialogue) GetResponse(r *http.Request) (*http.Response, error) {
	if md.requestMethod != r.Method {
		return nil, fmt.Errorf("Wrong Method, expected %q, but was %q", md.requestMethod, r.Method)
	}
	if md.requestType != "" {
		contentType := r.Header.Get("Content-Type")
		if md.requestType != contentType {
			return nil, fmt.Errorf("Content-Type was wrong, expected %q, but was %q", md.requestType, contentType)
		}
	}
	for k, expect := range md.requestHeaders {
		actual, ok := r.Header[http.CanonicalHeaderKey(k)]
		if !ok {
			return nil, fmt.Errorf("Missing request header %q", k)
		}
		if len(actual) != len(expect) {
			return nil, fmt.Errorf("Header %q was wrong, expected %q, but was %q", k, expect, actual)
		}
		for i, v := range expect {
			if actual[i] != v {
				return nil, fmt.Errorf("Header %q was wrong, expected %q, but was %q", k, expect, actual)
			}
		}
	}
	if md.requestPayload != nil && !bytes.Equal(md.requestPayload, DONT_CARE_REQUEST) {
		defer func() {
			_ = r.Body.Close()
		}()
		requestBody, err := ioutil.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("Failed to read request body: %s", err)
		}
		if !bytes.Equal(md.requestPayload, requestBody) {
			return nil, fmt.Errorf("Wrong request payload, expected \n%q, but was \n%q", string(md.requestPayload), string(requestBody))
		}
	}
	return &http.Response{
		Body:       &respBodyCloser{bytes.NewReader(md.responsePayload)},
		Status:     md.responseStatus,
		StatusCode: md.responseCode,
		Header:     http.Header{},
		Request:    r,
	}, nil
}

// MockGetDialogue returns a MockDialogue representing a GET request with the
// given response body.
func MockGetDialogue(responseBody []byte) MockDialogue {
	return MockDialogue{
		requestMethod: "GET",

		responseStatus:  "OK",
		responseCode:    http.StatusOK,
		responsePayload: responseBody,
	}
}

// MockPostDialogue returns a MockDialogue representing a POST request with
// the given content type, request body, and response body.
func MockPostDialogue(requestType string, requestBody, responseBody []byte) MockDialogue {
	return MockDialogue{
		requestMethod:  "POST",
		requestType:    requestType,
		requestPayload: requestBody,

		responseStatus:  "OK",
		responseCode:    http.StatusOK,
		responsePayload: responseBody,
	}
}

// MockPostError returns a MockDialogue representing a POST request whose
// response has the given status code and raw body.
func MockPostError(requestType string, requestBody []byte, responseCode int, responseBody []byte) MockDialogue {
	return MockDialogue{
		requestMethod:  "POST",
		requestType:    requestType,
		requestPayload: requestBody,

		responseStatus:  http.StatusText(responseCode),
		responseCode:    responseCode,
		responsePayload: responseBody,
	}
}

// URLMock implements http.RoundTripper but returns mocked responses. It
// provides two methods for mocking responses to requests for particular URLs:
//
//   - Mock: Adds a mocked dialogue for the given URL to be used every time a
//     request is made for that URL.
//
//   - MockOnce: Adds a mocked dialogue for the given URL to be used one time.
//     MockOnce may be called multiple times for the same URL in order to
//     simulate the response changing over time. Takes precedence over
//     dialogues specified using Mock.
//
// Example:
//
//	m := NewURLMock()
//	m.Mock("https://www.google.com", MockGetDialogue([]byte("Here's a response.")))
//	res, _ := m.Client().Get("https://www.google.com")
//	respBody, _ := ioutil.ReadAll(res.Body)  // respBody == []byte("Here's a response.")
type URLMock struct {
	mockAlways map[string]MockDialogue
	mockOnce   map[string][]MockDialogue
}

// Mock adds a mocked dialogue for the given URL; whenever this URLMock is
// used as a transport for an http.Client, requests to the given URL will
// always be matched against the given dialogue. Mocks specified using Mock()
// are independent of those specified using MockOnce(), except that those
// specified using MockOnce() take precedence when present.
func (m *URLMock) Mock(url string, md MockDialogue) {
	m.mockAlways[url] = md
}

// MockOnce adds a mocked dialogue for the given URL, to be used exactly once.
// Mocks are stored in a FIFO queue and removed from the queue as they are
// requested. Therefore, multiple requests to the same URL must each
// correspond to a call to MockOnce, in the same order that the requests will
// be made.
func (m *URLMock) MockOnce(url string, md MockDialogue) {
	if _, ok := m.mockOnce[url]; !ok {
		m.mockOnce[url] = []MockDialogue{}
	}
	m.mockOnce[url] = append(m.mockOnce[url], md)
}

// Client returns an http.Client instance which uses the URLMock.
func (m *URLMock) Client() *http.Client {
	return &http.Client{
		Transport: m,
	}
}

// RoundTrip is an implementation of http.RoundTripper.RoundTrip. It fakes
// responses for requests to URLs based on past calls to Mock() and
// MockOnce().
func (m *URLMock) RoundTrip(r *http.Request) (*http.Response, error) {
	url := r.URL.String()
	if resps, ok := m.mockOnce[url]; ok && len(resps) > 0 {
		md := resps[0]
		m.mockOnce[url] = m.mockOnce[url][1:]
		return md.GetResponse(r)
	}
	if md, ok := m.mockAlways[url]; ok {
		return md.GetResponse(r)
	}
	return nil, fmt.Errorf("Unknown URL %q", url)
}

// Empty returns true iff all of the URLs registered via MockOnce() have been
// used.
func (m *URLMock) Empty() bool {
	for _, resps := range m.mockOnce {
		if len(resps) > 0 {
			return false
		}
	}
	return true
}

// List returns the endpoints registered via MockOnce() which have not yet
// been used.
func (m *URLMock) List() []string {
	rv := []string{}
	for url, resps := range m.mockOnce {
		for range resps {
			rv = append(rv, url)
		}
	}
	return rv
}

// respBodyCloser is a wrapper which lets us pretend to implement
// io.ReadCloser by wrapping a bytes.Reader.
type respBodyCloser struct {
	io.Reader
}

// Close is a stub method which lets us pretend to implement io.ReadCloser.
func (r respBodyCloser) Close() error {
	return nil
}

// NewURLMock returns an empty URLMock instance.
func NewURLMock() *URLMock {
	return &URLMock{
		mockAlways: map[string]MockDialogue{},
		mockOnce:   map[string][]MockDialogue{},
	}
}

// New returns a new mocked HTTPClient which serves the given GET responses.
func New(urlMap map[string][]byte) *http.Client {
	m := NewURLMock()
	for k, v := range urlMap {
		m.Mock(k, MockGetDialogue(v))
	}
	return m.Client()
}
