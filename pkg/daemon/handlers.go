// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/orchestration"
	"github.com/n-engine/devit/pkg/wire"
	"github.com/n-engine/devit/pkg/worker"
)

// dispatch routes one authenticated inbound message to its handler. The
// bool return reports whether a response should be written back (a NOTIFY
// whose status is "ack" only fires the pending ACK handle and gets no
// reply; every other NOTIFY is answered with an ACK).
func (b *Broker) dispatch(ctx context.Context, msg wire.Message) (wire.Message, bool) {
	switch msg.MsgType {
	case wire.Register:
		return b.handleRegister(msg)
	case wire.Heartbeat:
		return b.handleHeartbeat(msg)
	case wire.Delegate:
		return b.handleDelegate(ctx, msg)
	case wire.Notify:
		return b.handleNotify(msg)
	case wire.Poll:
		return b.handlePoll(msg)
	case wire.StatusRequest:
		return b.handleStatusRequest(msg)
	case wire.ApprovalDecision:
		return b.handleApprovalDecision(msg)
	case wire.Screenshot:
		return b.handleScreenshot(ctx, msg)
	default:
		return b.errResponse(msg, errors.CodeInvalidFormat, "unknown message type"), true
	}
}

func (b *Broker) reply(msg wire.Message, msgType wire.MsgType, payload any) wire.Message {
	raw, _ := json.Marshal(payload)
	return wire.Message{
		MsgType: msgType,
		MsgID:   uuid.NewString(),
		From:    "daemon",
		To:      msg.From,
		TS:      time.Now().UnixMilli(),
		Nonce:   uuid.NewString(),
		Payload: raw,
	}
}

func (b *Broker) errResponse(msg wire.Message, code errors.Code, detail string) wire.Message {
	return b.reply(msg, wire.Err, map[string]any{"code": code, "detail": detail})
}

type registerPayload struct {
	Caps    []string `json:"caps"`
	Version string   `json:"version,omitempty"`
	PID     int      `json:"pid,omitempty"`
}

func (b *Broker) handleRegister(msg wire.Message) (wire.Message, bool) {
	var p registerPayload
	_ = json.Unmarshal(msg.Payload, &p)

	if b.cfg.ExpectedWorkerVersion != "" {
		if p.Version == "" {
			return b.errResponse(msg, errors.CodeVersionMissing, "REGISTER did not carry a version"), true
		}
		if p.Version != b.cfg.ExpectedWorkerVersion {
			return b.errResponse(msg, errors.CodeVersionMismatch,
				"worker version "+p.Version+" does not match expected "+b.cfg.ExpectedWorkerVersion), true
		}
	}

	b.manager.Register(orchestration.Client{Ident: msg.From, Capabilities: p.Caps, Version: p.Version})
	b.journal.Append("REGISTER", msg.MsgID, map[string]any{"ident": msg.From, "version": p.Version}, "")

	return b.reply(msg, wire.Ack, map[string]any{
		"daemon_version":          b.cfg.DaemonVersion,
		"expected_worker_version": b.cfg.ExpectedWorkerVersion,
		"worker_version":          p.Version,
	}), true
}

func (b *Broker) handleHeartbeat(msg wire.Message) (wire.Message, bool) {
	n, ok := b.manager.Heartbeat(msg.From)
	if !ok {
		return b.reply(msg, wire.Ack, map[string]any{"status": "ack"}), true
	}
	return b.reply(msg, wire.Notify, n), true
}

func (b *Broker) handlePoll(msg wire.Message) (wire.Message, bool) {
	n, ok := b.manager.Poll(msg.From)
	if !ok {
		return b.reply(msg, wire.Ack, map[string]any{"status": "empty"}), true
	}
	return b.reply(msg, wire.Notify, n), true
}

type delegateTaskPayload struct {
	Action         string          `json:"action,omitempty"`
	Goal           string          `json:"goal"`
	Timeout        int             `json:"timeout,omitempty"`
	Context        json.RawMessage `json:"context,omitempty"`
	WatchPatterns  []string        `json:"watch_patterns,omitempty"`
	WorkingDir     string          `json:"working_dir,omitempty"`
	Format         string          `json:"format,omitempty"`
	Model          string          `json:"model,omitempty"`
}

type delegatePayload struct {
	Task     delegateTaskPayload `json:"task"`
	ReturnTo string              `json:"return_to,omitempty"`
}

func (b *Broker) handleDelegate(ctx context.Context, msg wire.Message) (wire.Message, bool) {
	var p delegatePayload
	_ = json.Unmarshal(msg.Payload, &p)

	tool := p.Task.Action
	if tool == "" {
		tool = "unknown"
	}

	taskID := msg.MsgID
	returnTo := p.ReturnTo
	if returnTo == "" {
		returnTo = msg.From
	}

	switch evaluateTool(tool, b.cfg) {
	case orchestration.Deny:
		b.failTask(taskID, tool, msg.From, returnTo, "denied by policy")
		return b.errResponse(msg, errors.CodePolicyDenied, "tool "+tool+" is denied by policy"), true

	case orchestration.NeedApproval:
		approvalID := uuid.NewString()
		b.manager.AddApproval(orchestration.PendingApproval{
			TaskID:          taskID,
			OriginalMessage: msg.Payload,
			Tool:            tool,
			RequestedAt:     time.Now(),
		})
		b.journal.Append("DELEGATE_NEEDS_APPROVAL", taskID, map[string]any{"tool": tool, "approval_id": approvalID}, "")
		if b.cfg.ApproverTo != "" {
			b.manager.Enqueue(b.cfg.ApproverTo, orchestration.Notification{
				Status: "approval_requested",
				At:     time.Now(),
			})
		}
		return b.reply(msg, wire.Ack, map[string]any{
			"status":      "pending_approval",
			"task_id":     taskID,
			"approval_id": approvalID,
		}), true

	default: // Allow
		b.manager.AddLease(orchestration.Lease{
			TaskID:       taskID,
			AssignedTo:   tool,
			OriginalFrom: msg.From,
			ReturnTo:     returnTo,
			WorkingDir:   p.Task.WorkingDir,
		})
		b.manager.AddActiveTask(orchestration.DelegatedTask{
			ID:             taskID,
			Goal:           p.Task.Goal,
			DelegatedTo:    tool,
			CreatedAt:      time.Now(),
			TimeoutSecs:    p.Task.Timeout,
			Status:         orchestration.StatusInProgress,
			Context:        p.Task.Context,
			WatchPatterns:  p.Task.WatchPatterns,
			WorkingDir:     p.Task.WorkingDir,
			ResponseFormat: p.Task.Format,
			Model:          p.Task.Model,
			ReturnTo:       returnTo,
		})
		b.journal.Append("DELEGATE", taskID, map[string]any{"tool": tool, "return_to": returnTo}, "")

		if def, ok := b.cfg.Workers[tool]; ok {
			go b.dispatchWorker(ctx, def, taskID, p, returnTo)
		} else if b.manager.IsClientLive(tool) {
			b.manager.Enqueue(tool, orchestration.Notification{
				Status:    "delegate",
				Artifacts: delegateNotificationArtifacts(taskID, p, returnTo),
				At:        time.Now(),
			})
		}
		// Dispatch (when configured) runs in the background; otherwise, if
		// tool is a live polling worker, it was just handed the task via its
		// notification queue and will pick it up on its next HEARTBEAT/POLL.
		return b.reply(msg, wire.Ack, map[string]any{
			"status":  "accepted",
			"task_id": taskID,
		}), true
	}
}

// delegateNotificationArtifacts marshals the task a polling worker (one
// with no configured worker.Definition) needs to act on a DELEGATE,
// delivered as the Artifacts of a "delegate"-status Notification.
func delegateNotificationArtifacts(taskID string, p delegatePayload, returnTo string) json.RawMessage {
	raw, _ := json.Marshal(struct {
		TaskID     string          `json:"task_id"`
		Goal       string          `json:"goal"`
		Timeout    int             `json:"timeout,omitempty"`
		Context    json.RawMessage `json:"context,omitempty"`
		WorkingDir string          `json:"working_dir,omitempty"`
		Format     string          `json:"format,omitempty"`
		Model      string          `json:"model,omitempty"`
		ReturnTo   string          `json:"return_to,omitempty"`
	}{
		TaskID:     taskID,
		Goal:       p.Task.Goal,
		Timeout:    p.Task.Timeout,
		Context:    p.Task.Context,
		WorkingDir: p.Task.WorkingDir,
		Format:     p.Task.Format,
		Model:      p.Task.Model,
		ReturnTo:   returnTo,
	})
	return raw
}

func (b *Broker) dispatchWorker(ctx context.Context, def worker.Definition, taskID string, p delegatePayload, returnTo string) {
	task := worker.Task{
		ID:           taskID,
		Action:       p.Task.Action,
		Goal:         p.Task.Goal,
		WorkingDir:   p.Task.WorkingDir,
		Format:       worker.ResponseFormat(p.Task.Format),
		Model:        p.Task.Model,
		QueuedAt:     time.Now(),
	}
	if p.Task.Timeout > 0 {
		task.Timeout = time.Duration(p.Task.Timeout) * time.Second
	}

	res, err := worker.Dispatch(ctx, def, task, b.cfg.Workspace)
	if err != nil {
		b.failTask(taskID, def.Name, "", returnTo, err.Error())
		return
	}

	status := orchestration.StatusCompleted
	if res.Status == "failed" {
		status = orchestration.StatusFailed
	}

	artifactsJSON, _ := json.Marshal(res.Artifacts)
	n := orchestration.Notification{Status: string(status), Artifacts: artifactsJSON, At: time.Now()}
	b.completeAndRoute(taskID, def.Name, status, n, returnTo, res.Artifacts.Summary)
}

func (b *Broker) failTask(taskID, workerName, from, returnTo, reason string) {
	n := orchestration.Notification{Status: "failed", At: time.Now()}
	b.completeAndRoute(taskID, workerName, orchestration.StatusFailed, n, returnTo, reason)
}

func (b *Broker) completeAndRoute(taskID, workerName string, status orchestration.TaskStatus, n orchestration.Notification, returnTo, summary string) {
	resolvedReturnTo, _ := b.manager.CompleteTask(taskID, status, n)
	if resolvedReturnTo == "" {
		resolvedReturnTo = returnTo
	}

	b.journal.Append("NOTIFY", taskID, map[string]any{"status": n.Status, "return_to": resolvedReturnTo}, "")

	if resolvedReturnTo != "" {
		b.manager.Enqueue(resolvedReturnTo, n)
	}

	af := parseArtifactFields(n.Artifacts)
	marker := filepath.Join(b.cfg.Workspace, ".devit", "ack-"+taskID)
	b.acks.register(taskID, ackChannel{marker: marker})
	fireNotificationHook(b.log, hookPayload{
		TaskID:    taskID,
		Status:    string(status),
		Worker:    workerName,
		ReturnTo:  resolvedReturnTo,
		Summary:   summary,
		Timestamp: nowISO8601Zulu(),
		Details:   af.Details,
		Evidence:  af.Evidence,
		Metadata:  af.Metadata,
	}, marker)
}

// artifactFields pulls the details/evidence/metadata sub-fields a NOTIFY's
// artifacts blob may carry (worker.Artifacts's shape, or the lighter
// {summary, details, evidence} object the CLI's notify verb sends) straight
// through to the hook environment without needing to know which shape
// produced them.
type artifactFields struct {
	Details  json.RawMessage `json:"details,omitempty"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func parseArtifactFields(raw json.RawMessage) artifactFields {
	var f artifactFields
	_ = json.Unmarshal(raw, &f)
	return f
}

type notifyPayload struct {
	TaskID   string          `json:"task_id,omitempty"`
	Status   string          `json:"status"`
	Artifacts json.RawMessage `json:"artifacts,omitempty"`
	ReturnTo string          `json:"return_to,omitempty"`
}

func (b *Broker) handleNotify(msg wire.Message) (wire.Message, bool) {
	var p notifyPayload
	_ = json.Unmarshal(msg.Payload, &p)

	taskID := p.TaskID
	if taskID == "" {
		taskID = msg.MsgID
	}

	if strings.EqualFold(p.Status, "ack") {
		b.acks.fire(taskID)
		return wire.Message{}, false
	}

	status := mapNotifyStatus(p.Status)
	n := orchestration.Notification{Status: p.Status, Artifacts: p.Artifacts, At: time.Now()}

	resolvedReturnTo, hadLease := b.manager.CompleteTask(taskID, status, n)
	if !hadLease {
		b.journal.Append("LATE_NOTIFICATION", taskID, map[string]any{"status": p.Status}, "")
	} else {
		b.journal.Append("NOTIFY", taskID, map[string]any{"status": p.Status}, "")
	}

	returnTo := p.ReturnTo
	if returnTo == "" {
		returnTo = resolvedReturnTo
	}
	if returnTo != "" {
		b.manager.Enqueue(returnTo, n)
	}

	af := parseArtifactFields(p.Artifacts)
	marker := filepath.Join(b.cfg.Workspace, ".devit", "ack-"+taskID)
	b.acks.register(taskID, ackChannel{marker: marker})
	fireNotificationHook(b.log, hookPayload{
		TaskID:    taskID,
		Status:    string(status),
		ReturnTo:  returnTo,
		Timestamp: nowISO8601Zulu(),
		Details:   af.Details,
		Evidence:  af.Evidence,
		Metadata:  af.Metadata,
	}, marker)

	return b.reply(msg, wire.Ack, map[string]any{"status": "ack"}), true
}

func mapNotifyStatus(s string) orchestration.TaskStatus {
	switch strings.ToLower(s) {
	case "completed", "success", "ok":
		return orchestration.StatusCompleted
	case "cancelled", "canceled":
		return orchestration.StatusCancelled
	default:
		return orchestration.StatusFailed
	}
}

func (b *Broker) handleStatusRequest(msg wire.Message) (wire.Message, bool) {
	active, completed, summary := b.manager.Status()
	return b.reply(msg, wire.StatusResponse, map[string]any{
		"active_tasks":    active,
		"completed_tasks": completed,
		"summary":         summary,
	}), true
}

type approvalDecisionPayload struct {
	TaskID  string `json:"task_id"`
	Approve bool   `json:"approve"`
}

func (b *Broker) handleApprovalDecision(msg wire.Message) (wire.Message, bool) {
	var p approvalDecisionPayload
	_ = json.Unmarshal(msg.Payload, &p)

	pending, ok := b.manager.ResolveApproval(p.TaskID)
	if !ok {
		return b.errResponse(msg, errors.CodeInvalidFormat, "no pending approval for task "+p.TaskID), true
	}

	if !p.Approve {
		b.failTask(p.TaskID, pending.Tool, "", "", "rejected by approver")
		return b.reply(msg, wire.Ack, map[string]any{"status": "rejected"}), true
	}

	var original delegatePayload
	_ = json.Unmarshal(pending.OriginalMessage, &original)

	returnTo := original.ReturnTo
	b.manager.AddLease(orchestration.Lease{
		TaskID:       p.TaskID,
		AssignedTo:   pending.Tool,
		OriginalFrom: msg.From,
		ReturnTo:     returnTo,
	})
	b.manager.AddActiveTask(orchestration.DelegatedTask{
		ID:          p.TaskID,
		Goal:        original.Task.Goal,
		DelegatedTo: pending.Tool,
		CreatedAt:   time.Now(),
		Status:      orchestration.StatusInProgress,
		ReturnTo:    returnTo,
	})
	b.journal.Append("APPROVAL_GRANTED", p.TaskID, map[string]any{"tool": pending.Tool}, "")

	if def, ok := b.cfg.Workers[pending.Tool]; ok {
		go b.dispatchWorker(context.Background(), def, p.TaskID, original, returnTo)
	} else if b.manager.IsClientLive(pending.Tool) {
		b.manager.Enqueue(pending.Tool, orchestration.Notification{
			Status:    "delegate",
			Artifacts: delegateNotificationArtifacts(p.TaskID, original, returnTo),
			At:        time.Now(),
		})
	}

	return b.reply(msg, wire.Ack, map[string]any{"status": "approved"}), true
}

type screenshotPayload struct {
	Format string `json:"format,omitempty"`
}

func (b *Broker) handleScreenshot(ctx context.Context, msg wire.Message) (wire.Message, bool) {
	sc := b.cfg.Screenshot
	if !sc.Enabled {
		return b.errResponse(msg, errors.CodeScreenshotDenied, "screenshot capability is disabled"), true
	}
	maxPerWindow := sc.MaxPerWindow
	if maxPerWindow <= 0 {
		maxPerWindow = 10
	}
	window := sc.Window
	if window <= 0 {
		window = time.Minute
	}
	if !b.shotLimit.allow(maxPerWindow, window) {
		return b.errResponse(msg, errors.CodeScreenshotDenied, "screenshot rate limit exceeded"), true
	}

	var p screenshotPayload
	_ = json.Unmarshal(msg.Payload, &p)

	path, size, err := captureScreenshot(ctx, sc, b.cfg.Workspace, p.Format)
	if err != nil {
		return b.errResponse(msg, errors.CodeScreenshotFailed, err.Error()), true
	}

	return b.reply(msg, wire.Ack, map[string]any{
		"status": "ok",
		"path":   path,
		"format": p.Format,
		"size":   map[string]any{"bytes": size, "human": humanSize(size)},
	}), true
}
