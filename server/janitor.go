package server

import (
	"time"

	"github.com/robfig/cron/v3"
)

// InitializeSchedules starts all the cron jobs (currently just one)
func (serverHandler *ServerHandler) InitializeSchedules() {
	c := cron.New()
	var sweepJob cron.Job
	sweepJob = cron.FuncJob(serverHandler.sweepIdleSessions)
	sweepJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(sweepJob) //ensure we don't kick off another if old one is still running
	c.AddJob("@every 1m", sweepJob)
	Logger.Info("Adding session janitor", "idle_minutes", serverHandler.ServerConfig.SessionIdleMinutes)
	c.Start()
}

// sweepIdleSessions closes document sessions that have been idle longer
// than the configured window, releasing their engine handles and caches.
func (serverHandler *ServerHandler) sweepIdleSessions() {
	idle := time.Duration(serverHandler.ServerConfig.SessionIdleMinutes) * time.Minute
	if idle <= 0 {
		return
	}
	cutoff := time.Now().Add(-idle)

	serverHandler.mu.Lock()
	expired := make(map[string]*session)
	for id, sess := range serverHandler.sessions {
		if sess.lastUsed.Before(cutoff) {
			expired[id] = sess
			delete(serverHandler.sessions, id)
		}
	}
	serverHandler.mu.Unlock()

	for id, sess := range expired {
		if err := sess.res.Close(); err != nil {
			Logger.Error("Error closing idle session", "id", id, "error", err)
			continue
		}
		Logger.Info("Closed idle document session", "id", id)
	}
}
