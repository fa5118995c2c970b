package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"omnistream/internal/api"
	"omnistream/internal/daemon"
	"omnistream/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger.With(logging.String(logging.FieldComponent, "ipc")), ctx: ctx}
	if err := rpcServer.RegisterName("OmniStream", svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("remove socket", logging.String("socket", s.path), logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) TaskList(_ TaskListRequest, resp *TaskListResponse) error {
	tasks, err := s.daemon.ListTasks(s.ctx)
	if err != nil {
		return err
	}
	resp.Tasks = api.FromTasks(tasks)
	return nil
}

func (s *service) TaskStart(req TaskStartRequest, resp *TaskStartResponse) error {
	taskID, err := s.daemon.StartCapture(s.ctx, req.Name, req.URL)
	if err != nil {
		return err
	}
	resp.TaskID = taskID
	s.logger.Info("capture started via ipc", logging.String(logging.FieldTaskID, taskID))
	return nil
}

func (s *service) TaskStop(req TaskStopRequest, resp *TaskStopResponse) error {
	if req.ID == "" {
		return errors.New("task id required")
	}
	if err := s.daemon.StopTask(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Stopped = true
	s.logger.Info("task stopped via ipc", logging.String(logging.FieldTaskID, req.ID))
	return nil
}

func (s *service) TaskRemove(req TaskRemoveRequest, resp *TaskRemoveResponse) error {
	if req.ID == "" {
		return errors.New("task id required")
	}
	if err := s.daemon.RemoveTask(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) SourceList(_ SourceListRequest, resp *SourceListResponse) error {
	sources, err := s.daemon.ListSources(s.ctx)
	if err != nil {
		return err
	}
	resp.Sources = sources
	return nil
}

func (s *service) SourceSave(req SourceSaveRequest, resp *SourceSaveResponse) error {
	saved, err := s.daemon.SaveSource(s.ctx, req.Source.ToSource())
	if err != nil {
		return err
	}
	resp.Source = api.FromSource(saved, "")
	return nil
}

func (s *service) SourceRemove(req SourceRemoveRequest, resp *SourceRemoveResponse) error {
	if req.ID == "" {
		return errors.New("source id required")
	}
	if err := s.daemon.RemoveSource(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) ProfileList(_ ProfileListRequest, resp *ProfileListResponse) error {
	profiles, err := s.daemon.ListProfiles(s.ctx)
	if err != nil {
		return err
	}
	resp.Profiles = make([]Profile, 0, len(profiles))
	for _, profile := range profiles {
		resp.Profiles = append(resp.Profiles, api.FromProfile(profile))
	}
	return nil
}

func (s *service) ProfileSave(req ProfileSaveRequest, resp *ProfileSaveResponse) error {
	saved, err := s.daemon.SaveProfile(s.ctx, req.Profile.ToProfile())
	if err != nil {
		return err
	}
	resp.Profile = api.FromProfile(saved)
	return nil
}

func (s *service) ProfileRemove(req ProfileRemoveRequest, resp *ProfileRemoveResponse) error {
	if req.ID == "" {
		return errors.New("profile id required")
	}
	if err := s.daemon.RemoveProfile(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) SettingsGet(_ SettingsGetRequest, resp *SettingsGetResponse) error {
	resp.Settings = s.daemon.Settings()
	return nil
}

func (s *service) SettingsSet(req SettingsSetRequest, resp *SettingsSetResponse) error {
	updated, err := s.daemon.UpdateSettings(s.ctx, req.Settings)
	if err != nil {
		return err
	}
	resp.Settings = updated
	return nil
}

func (s *service) Publish(req PublishRequest, resp *PublishResponse) error {
	var (
		taskID string
		err    error
	)
	switch {
	case req.SourceID != "":
		taskID, err = s.daemon.PublishSource(s.ctx, req.SourceID)
	case req.Directory != "":
		taskID, err = s.daemon.ManualPublish(s.ctx, req.Directory, req.ProfileIDs)
	default:
		return errors.New("source id or directory required")
	}
	if err != nil {
		return err
	}
	resp.TaskID = taskID
	s.logger.Info("manual publication requested via ipc", logging.String(logging.FieldTaskID, taskID))
	return nil
}
