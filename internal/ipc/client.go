package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("OmniStream.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskList returns every task in creation order.
func (c *Client) TaskList() (*TaskListResponse, error) {
	var resp TaskListResponse
	if err := c.client.Call("OmniStream.TaskList", TaskListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskStart begins recording a URL immediately.
func (c *Client) TaskStart(name, url string) (*TaskStartResponse, error) {
	var resp TaskStartResponse
	if err := c.client.Call("OmniStream.TaskStart", TaskStartRequest{Name: name, URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskStop stops a running capture or resets a finished task.
func (c *Client) TaskStop(id string) (*TaskStopResponse, error) {
	var resp TaskStopResponse
	if err := c.client.Call("OmniStream.TaskStop", TaskStopRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TaskRemove deletes a stopped task.
func (c *Client) TaskRemove(id string) (*TaskRemoveResponse, error) {
	var resp TaskRemoveResponse
	if err := c.client.Call("OmniStream.TaskRemove", TaskRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceList returns every source with its derived state.
func (c *Client) SourceList() (*SourceListResponse, error) {
	var resp SourceListResponse
	if err := c.client.Call("OmniStream.SourceList", SourceListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceSave creates or updates a source.
func (c *Client) SourceSave(source Source) (*SourceSaveResponse, error) {
	var resp SourceSaveResponse
	if err := c.client.Call("OmniStream.SourceSave", SourceSaveRequest{Source: source}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceRemove deletes a source by id.
func (c *Client) SourceRemove(id string) (*SourceRemoveResponse, error) {
	var resp SourceRemoveResponse
	if err := c.client.Call("OmniStream.SourceRemove", SourceRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProfileList returns every publication profile.
func (c *Client) ProfileList() (*ProfileListResponse, error) {
	var resp ProfileListResponse
	if err := c.client.Call("OmniStream.ProfileList", ProfileListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProfileSave creates or updates a profile.
func (c *Client) ProfileSave(profile Profile) (*ProfileSaveResponse, error) {
	var resp ProfileSaveResponse
	if err := c.client.Call("OmniStream.ProfileSave", ProfileSaveRequest{Profile: profile}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProfileRemove deletes a profile by id.
func (c *Client) ProfileRemove(id string) (*ProfileRemoveResponse, error) {
	var resp ProfileRemoveResponse
	if err := c.client.Call("OmniStream.ProfileRemove", ProfileRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsGet retrieves the global capture settings.
func (c *Client) SettingsGet() (*SettingsGetResponse, error) {
	var resp SettingsGetResponse
	if err := c.client.Call("OmniStream.SettingsGet", SettingsGetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SettingsSet replaces the global capture settings.
func (c *Client) SettingsSet(settings SettingsSetRequest) (*SettingsSetResponse, error) {
	var resp SettingsSetResponse
	if err := c.client.Call("OmniStream.SettingsSet", settings, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Publish uploads the media files in a directory under the named profiles.
func (c *Client) Publish(dir string, profileIDs []string) (*PublishResponse, error) {
	var resp PublishResponse
	req := PublishRequest{Directory: dir, ProfileIDs: profileIDs}
	if err := c.client.Call("OmniStream.Publish", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PublishSource uploads a source's recorded files under its linked profiles.
func (c *Client) PublishSource(sourceID string) (*PublishResponse, error) {
	var resp PublishResponse
	req := PublishRequest{SourceID: sourceID}
	if err := c.client.Call("OmniStream.Publish", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
