// Package yunfei 负责策略发布站的登录会话、页面抓取与解析。
package yunfei

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// 命中任意一个即认为处于登录态
var loggedInMarkers = []string{"退出", "个人资料", "Hi,"}

// 站点限流提示语
const rateLimitPhrase = "访问过于频繁"

var (
	ErrLoginFailed = errors.New("login failed")
	ErrRateLimited = errors.New("rate limited")
)

type Session struct {
	client    *http.Client
	baseURL   string
	loginPath string
	username  string
	password  string
	loggedIn  bool
}

func NewSession(baseURL, loginPath, username, password string, timeout time.Duration) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		client:    &http.Client{Jar: jar, Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		loginPath: loginPath,
		username:  username,
		password:  password,
	}, nil
}

func (s *Session) LoggedIn() bool { return s.loggedIn }

// Reset 丢弃会话 cookie 并重建底层连接。
// 连续 TLS 握手失败时换一条链路重来。
func (s *Session) Reset() {
	if jar, err := cookiejar.New(nil); err == nil {
		s.client.Jar = jar
	}
	s.client.CloseIdleConnections()
	s.loggedIn = false
}

// Login 提交登录表单。站点是 WebForms 页面，必须把登录页上的
// 全部隐藏字段（__VIEWSTATE 等）原样带回，否则提交被拒。
// 最多重试 2 次。
func (s *Session) Login(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
		if err := s.loginOnce(ctx); err != nil {
			lastErr = err
			log.Warn().Int("attempt", attempt).Err(err).Msg("site login attempt failed")
			continue
		}
		s.loggedIn = true
		log.Info().Str("user", s.username).Msg("site login ok")
		return nil
	}
	s.loggedIn = false
	if lastErr == nil {
		lastErr = ErrLoginFailed
	}
	return fmt.Errorf("%w: %v", ErrLoginFailed, lastErr)
}

func (s *Session) loginOnce(ctx context.Context) error {
	loginURL := s.baseURL + s.loginPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	form := url.Values{}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := sel.Attr("value")
		form.Set(name, value)
	})
	form.Set("txt_name_2020_byf", s.username)
	form.Set("txt_pwd_2020_byf", s.password)
	form.Set("ckb_UserAgreement", "on")
	form.Set("btn_login", "登 录")

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err = s.client.Do(post)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	if !containsMarker(string(body)) {
		return ErrLoginFailed
	}
	return nil
}

// FetchProtected 抓取登录后页面。校验前插入随机延迟，
// 降低被风控识别的概率。
func (s *Session) FetchProtected(ctx context.Context, path string) (string, error) {
	delay := time.Duration(2000+rand.Intn(2500)) * time.Millisecond
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(delay):
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", err
	}
	html := string(body)

	if strings.Contains(html, rateLimitPhrase) {
		return html, ErrRateLimited
	}
	if !containsMarker(html) {
		s.loggedIn = false
		return html, ErrLoginFailed
	}
	return html, nil
}

func containsMarker(body string) bool {
	for _, m := range loggedInMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}
