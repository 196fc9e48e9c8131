package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "cancelled", err: context.Canceled, want: "cancelled"},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "cms"}, want: "dns"},
		{name: "dial", err: &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, want: "dial"},
		{name: "api status", err: errors.New("telegram: message to edit not found (400)"), want: "http_4xx"},
		{name: "server status", err: errors.New("telegram: internal error (502)"), want: "http_5xx"},
		{name: "opaque", err: errors.New("boom"), want: "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestRedactError(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AAH-x_y/sendMessage": EOF`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`, RedactError(err))
	assert.Empty(t, RedactError(nil))
}

type codedErr struct{}

func (codedErr) Error() string { return "cms down" }
func (codedErr) Code() string  { return "CMS_Unavailable" }

func TestClassifyErrorPrefersOwnCode(t *testing.T) {
	assert.Equal(t, "cms_unavailable", ClassifyError(fmt.Errorf("load: %w", codedErr{})))
}
