package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wfunc/bb84server/logger"
	"github.com/wfunc/bb84server/network"
	"github.com/wfunc/bb84server/quantum"
	"github.com/wfunc/bb84server/session"
	"github.com/wfunc/bb84server/state"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")

	errNoHistory = errors.New("round history is not enabled")
	errBadLimit  = errors.New("limit must be a non-negative integer")
)

var packetIntents = map[uint16]state.Intent{
	network.MsgTypeSendQubit:  state.IntentSendQubit,
	network.MsgTypeEveSkip:    state.IntentEveSkip,
	network.MsgTypeEveMeasure: state.IntentEveMeasure,
	network.MsgTypeBobMeasure: state.IntentBobMeasure,
	network.MsgTypeNextRound:  state.IntentNextRound,
	network.MsgTypeResetGame:  state.IntentResetGame,
}

// dispatch handles one packet. Any error goes back to the sender alone.
func (s *GameServer) dispatch(sess *session.Session, packet *network.Packet) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := s.handlePacket(ctx, sess, packet); err != nil {
		logger.Log.Debugf("Session %s packet %d rejected: %v", sess.GetID(), packet.MsgID, err)
		s.sendError(sess, err)
	}
}

func (s *GameServer) handlePacket(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	sess.Touch()

	if intent, ok := packetIntents[packet.MsgID]; ok {
		return s.handleIntent(ctx, sess, intent)
	}

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		return nil
	case network.MsgTypeJoin:
		return s.handleJoin(ctx, sess, packet)
	case network.MsgTypeLeave:
		return s.handleLeave(sess)
	case network.MsgTypeUpdatePlayer:
		return s.handleUpdatePlayer(ctx, sess, packet)
	case network.MsgTypeSetAliceBit:
		return s.handleSetAliceBit(ctx, sess, packet)
	case network.MsgTypeSetBasisFlip:
		return s.handleSetBasisFlip(ctx, sess, packet)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownMessage, packet.MsgID)
	}
}

func (s *GameServer) handleJoin(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	var req network.JoinRequest
	if err := packet.Unmarshal(&req); err != nil {
		return fmt.Errorf("decode join: %w", err)
	}
	role, err := state.ParseRole(req.Role)
	if err != nil {
		return err
	}
	if held, ok := sess.Role(); ok {
		return fmt.Errorf("%w: %s", session.ErrRoleAlreadyHeld, held)
	}

	if err := s.room.Join(ctx, role); err != nil {
		return err
	}
	if err := sess.AssignRole(role); err != nil {
		return err
	}
	logger.Log.Infof("Session %s joined as %s", sess.GetID(), role)

	return s.reply(sess, network.MsgTypeRoleAssigned, network.RoleAssigned{Role: role.String()})
}

func (s *GameServer) handleLeave(sess *session.Session) error {
	s.releaseRole(sess)
	return nil
}

func (s *GameServer) handleIntent(ctx context.Context, sess *session.Session, intent state.Intent) error {
	if err := sess.Authorize(intent.Actor()); err != nil {
		return fmt.Errorf("%s: %w", intent, err)
	}

	var run func(context.Context) (state.Outcome, error)
	switch intent {
	case state.IntentSendQubit:
		run = s.room.SendQubit
	case state.IntentEveSkip:
		run = s.room.EveSkip
	case state.IntentEveMeasure:
		run = s.room.EveMeasure
	case state.IntentBobMeasure:
		run = s.room.BobMeasure
	case state.IntentNextRound:
		run = s.room.NextRound
	case state.IntentResetGame:
		run = s.room.ResetGame
	}

	outcome, err := run(ctx)
	if err != nil {
		return err
	}
	if outcome == state.Ignored {
		logger.Log.Debugf("Session %s: %s ignored in current phase", sess.GetID(), intent)
	}
	return nil
}

// handleUpdatePlayer merges the named slot's fields. A session may only edit
// the slot it holds.
func (s *GameServer) handleUpdatePlayer(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	var req network.UpdatePlayerRequest
	if err := packet.Unmarshal(&req); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}
	role, err := state.ParseRole(req.Role)
	if err != nil {
		return err
	}
	if err := sess.Authorize(role); err != nil {
		return fmt.Errorf("updatePlayer: %w", err)
	}

	var u state.SlotUpdate
	if req.Data.Bit != nil {
		bit, err := quantum.ParseBit(*req.Data.Bit)
		if err != nil {
			return fmt.Errorf("%w: %v", state.ErrInvalidUpdate, err)
		}
		u.Bit = &bit
	}
	u.BasisFlip = req.Data.BasisFlip

	_, err = s.room.UpdateSlot(ctx, role, u)
	return err
}

func (s *GameServer) handleSetAliceBit(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	if err := sess.Authorize(state.RoleAlice); err != nil {
		return fmt.Errorf("setAliceBit: %w", err)
	}
	var req network.SetAliceBitRequest
	if err := packet.Unmarshal(&req); err != nil {
		return fmt.Errorf("decode bit: %w", err)
	}
	bit, err := quantum.ParseBit(req.Bit)
	if err != nil {
		return fmt.Errorf("%w: %v", state.ErrInvalidUpdate, err)
	}
	_, err = s.room.SetAliceBit(ctx, bit)
	return err
}

func (s *GameServer) handleSetBasisFlip(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	role, ok := sess.Role()
	if !ok || !role.IsPlayer() {
		return fmt.Errorf("setBasisFlip: %w: join as alice, eve or bob first", session.ErrForbiddenRoleAction)
	}
	var req network.SetBasisFlipRequest
	if err := packet.Unmarshal(&req); err != nil {
		return fmt.Errorf("decode basis: %w", err)
	}
	_, err := s.room.SetBasisFlip(ctx, role, req.BasisFlip)
	return err
}

// reply sends v to sess alone.
func (s *GameServer) reply(sess *session.Session, msgID uint16, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.broadcaster.SendTo(sess.GetID(), msgID, data)
}

func (s *GameServer) sendError(sess *session.Session, cause error) {
	if err := s.reply(sess, network.MsgTypeError, network.ErrorMessage{Message: cause.Error()}); err != nil {
		logger.Log.Warnf("Failed to send error to session %s: %v", sess.GetID(), err)
	}
}
