package auth0

import "context"

// FakeClient serves canned userinfo responses keyed by access token.
type FakeClient struct {
	Users map[string]*UserInfo
}

func NewFakeClient() *FakeClient {
	return &FakeClient{Users: make(map[string]*UserInfo)}
}

// AddUser registers the profile returned for the given token.
func (c *FakeClient) AddUser(accessToken string, info *UserInfo) {
	c.Users[accessToken] = info
}

func (c *FakeClient) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	if info, ok := c.Users[accessToken]; ok {
		return info, nil
	}
	return nil, ErrUserInfoFailed
}
