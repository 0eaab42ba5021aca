// ABOUTME: Periodic removal of idle, disconnected conversations
// ABOUTME: Bounds memory held by abandoned sessions without caller cleanup

package conversation

// sweepIdle removes every conversation that is not connected and has been
// idle longer than MaxInactivity, closing its socket.
func (r *Registry) sweepIdle() {
	now := r.sched.Now()

	r.mu.Lock()
	var stale []*Conversation
	for key, conv := range r.conversations {
		if conv.Connected() {
			continue
		}
		if now.Sub(conv.LastActivity()) <= r.cfg.MaxInactivity {
			continue
		}
		stale = append(stale, conv)
		delete(r.conversations, key)
	}
	if len(stale) > 0 {
		r.metrics.SetActiveConversations(len(r.conversations))
	}
	r.mu.Unlock()

	for _, conv := range stale {
		conv.close("idle timeout")
		r.watchers.closeKey(conv.key)
		r.metrics.IdleRemoved()
		r.logger.Info("removed idle conversation",
			"conversation_key", conv.key,
			"idle", now.Sub(conv.LastActivity()))
	}
}
