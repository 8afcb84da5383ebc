// Package session mirrors active call sessions into Redis so external
// dashboards can observe live calls, and carries the cross-instance
// hangup broadcast. Everything here is best-effort: the registry keeps
// working when Redis is unavailable.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/realjules/SpeakWise/pkg/logger"
	"github.com/realjules/SpeakWise/pkg/redis"
	"go.uber.org/zap"
)

const (
	HangupChannel    = "speakwise:telephony:call:hangup"
	SessionKeyPrefix = "speakwise:telephony:call:info"
	SessionTTL       = 1 * time.Hour
)

// CallInfo is the monitoring snapshot stored per active call.
type CallInfo struct {
	CallID      string    `json:"callId"`
	InstanceID  string    `json:"instanceId"`
	PhoneNumber string    `json:"phoneNumber"`
	Direction   string    `json:"direction"`
	StartTime   time.Time `json:"startTime"`
}

// HangupMessage is the payload for the hangup broadcast.
type HangupMessage struct {
	CallID string `json:"callId"`
}

type Manager struct {
	redisSvc   redis.RedisServiceInterface
	instanceID string
}

func NewManager(redisSvc redis.RedisServiceInterface, instanceID string) *Manager {
	return &Manager{
		redisSvc:   redisSvc,
		instanceID: instanceID,
	}
}

// Register stores a call snapshot for monitoring
func (m *Manager) Register(ctx context.Context, info CallInfo) error {
	info.InstanceID = m.instanceID
	if info.StartTime.IsZero() {
		info.StartTime = time.Now()
	}

	data, _ := json.Marshal(info)
	key := fmt.Sprintf("%s:%s", SessionKeyPrefix, info.CallID)

	err := m.redisSvc.SetValue(ctx, key, string(data), SessionTTL)
	if err == nil {
		logger.Base().Info("Call registered in Redis", zap.String("call_id", info.CallID), zap.String("instance_id", m.instanceID))
	}
	return err
}

// Unregister removes a call snapshot from monitoring
func (m *Manager) Unregister(ctx context.Context, callID string) error {
	key := fmt.Sprintf("%s:%s", SessionKeyPrefix, callID)
	return m.redisSvc.DelValue(ctx, key)
}

// ListActive returns the snapshots of calls registered by any instance.
// Malformed snapshots are skipped, and a key expiring mid-scan is not an
// error.
func (m *Manager) ListActive(ctx context.Context) ([]CallInfo, error) {
	keys, err := m.redisSvc.Keys(ctx, SessionKeyPrefix+":*")
	if err != nil {
		return nil, fmt.Errorf("failed to list session keys: %w", err)
	}

	infos := make([]CallInfo, 0, len(keys))
	for _, key := range keys {
		raw, err := m.redisSvc.GetValue(ctx, key)
		if err != nil {
			if err == redis.ErrKeyNotExist {
				continue
			}
			return nil, fmt.Errorf("failed to read session %s: %w", key, err)
		}

		var info CallInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			logger.Base().Warn("Skipping malformed call snapshot", zap.String("key", key), zap.Error(err))
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// NotifyHangup broadcasts a hangup request to all instances
func (m *Manager) NotifyHangup(ctx context.Context, callID string) error {
	logger.Base().Info("Broadcasting hangup request", zap.String("call_id", callID))
	return m.redisSvc.Publish(ctx, HangupChannel, HangupMessage{CallID: callID})
}

// SubscribeToHangup listens for hangup broadcasts
func (m *Manager) SubscribeToHangup(ctx context.Context, handler func(callID string)) error {
	return m.redisSvc.Subscribe(ctx, HangupChannel, func(payload string) {
		var msg HangupMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			logger.Base().Error("Failed to unmarshal hangup message", zap.Error(err))
			return
		}
		handler(msg.CallID)
	})
}
