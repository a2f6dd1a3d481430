package rpc

import (
	"context"
	"net/rpc"
	"time"

	"github.com/wfunc/bb84server/models"
	"github.com/wfunc/bb84server/room"
	"github.com/wfunc/bb84server/services"
	"github.com/wfunc/bb84server/state"
)

// AdminServiceName is the name AdminService is registered under.
const AdminServiceName = "Admin"

const callTimeout = 5 * time.Second

// AdminService exposes the admin intents to operators over net/rpc. Methods
// follow the net/rpc shape: exported args, pointer reply, error result.
type AdminService struct {
	room    *room.Room
	history *services.HistoryService
}

func NewAdminService(r *room.Room, history *services.HistoryService) *AdminService {
	return &AdminService{room: r, history: history}
}

type Empty struct{}

type StateReply struct {
	Snapshot state.Snapshot
}

// IntentReply carries whether the intent changed the round and the state after it.
type IntentReply struct {
	Outcome  string
	Snapshot state.Snapshot
}

type HistoryArgs struct {
	Limit       int
	WithRecords bool
}

type HistoryReply struct {
	Summary models.Summary
}

func (a *AdminService) State(args *Empty, reply *StateReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	snap, err := a.room.Snapshot(ctx)
	if err != nil {
		return err
	}
	reply.Snapshot = snap
	return nil
}

func (a *AdminService) ResetGame(args *Empty, reply *IntentReply) error {
	return a.intent(a.room.ResetGame, reply)
}

func (a *AdminService) NextRound(args *Empty, reply *IntentReply) error {
	return a.intent(a.room.NextRound, reply)
}

func (a *AdminService) intent(run func(context.Context) (state.Outcome, error), reply *IntentReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	outcome, err := run(ctx)
	if err != nil {
		return err
	}
	snap, err := a.room.Snapshot(ctx)
	if err != nil {
		return err
	}
	reply.Outcome = outcome.String()
	reply.Snapshot = snap
	return nil
}

func (a *AdminService) History(args *HistoryArgs, reply *HistoryReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	summary, err := a.history.Summary(ctx, args.Limit, args.WithRecords)
	if err != nil {
		return err
	}
	reply.Summary = summary
	return nil
}

// Client calls AdminService on a remote server.
type Client struct {
	rpc *rpc.Client
}

func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

func (c *Client) State() (state.Snapshot, error) {
	var reply StateReply
	err := c.rpc.Call(AdminServiceName+".State", &Empty{}, &reply)
	return reply.Snapshot, err
}

func (c *Client) ResetGame() (IntentReply, error) {
	var reply IntentReply
	err := c.rpc.Call(AdminServiceName+".ResetGame", &Empty{}, &reply)
	return reply, err
}

func (c *Client) NextRound() (IntentReply, error) {
	var reply IntentReply
	err := c.rpc.Call(AdminServiceName+".NextRound", &Empty{}, &reply)
	return reply, err
}

func (c *Client) History(limit int, withRecords bool) (models.Summary, error) {
	var reply HistoryReply
	err := c.rpc.Call(AdminServiceName+".History", &HistoryArgs{Limit: limit, WithRecords: withRecords}, &reply)
	return reply.Summary, err
}

func (c *Client) Close() error {
	return c.rpc.Close()
}
