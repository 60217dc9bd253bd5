package memory

import (
	"sort"
	"time"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/repository"
)

// state holds the tables. Its methods assume the caller holds the store lock.
type state struct {
	players     map[string]models.Player
	queue       map[string]models.QueueEntry
	queueOrder  []string
	matches     map[string]*models.Match
	matchOrder  []string
	servers     map[string]models.GameServer
	serverOrder []string
	bans        map[string]models.Ban
	banOrder    []string
	voteSeq     int64
}

func newState() *state {
	return &state{
		players: make(map[string]models.Player),
		queue:   make(map[string]models.QueueEntry),
		matches: make(map[string]*models.Match),
		servers: make(map[string]models.GameServer),
		bans:    make(map[string]models.Ban),
	}
}

func (s *state) clone() *state {
	c := &state{
		players:     make(map[string]models.Player, len(s.players)),
		queue:       make(map[string]models.QueueEntry, len(s.queue)),
		queueOrder:  append([]string(nil), s.queueOrder...),
		matches:     make(map[string]*models.Match, len(s.matches)),
		matchOrder:  append([]string(nil), s.matchOrder...),
		servers:     make(map[string]models.GameServer, len(s.servers)),
		serverOrder: append([]string(nil), s.serverOrder...),
		bans:        make(map[string]models.Ban, len(s.bans)),
		banOrder:    append([]string(nil), s.banOrder...),
		voteSeq:     s.voteSeq,
	}
	for k, v := range s.players {
		c.players[k] = v
	}
	for k, v := range s.queue {
		c.queue[k] = v
	}
	for k, v := range s.matches {
		c.matches[k] = copyMatch(v)
	}
	for k, v := range s.servers {
		c.servers[k] = v
	}
	for k, v := range s.bans {
		c.bans[k] = v
	}
	return c
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	c.Players = append([]models.MatchPlayer(nil), m.Players...)
	c.Votes = append([]models.MapVote(nil), m.Votes...)
	c.Rounds = make([]models.Round, len(m.Rounds))
	for i, r := range m.Rounds {
		r.Stats = append([]models.PlayerRoundStats(nil), r.Stats...)
		c.Rounds[i] = r
	}
	return &c
}

// players

func (s *state) getPlayer(id string) (*models.Player, error) {
	p, ok := s.players[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *state) upsertPlayer(id, displayName string, rating int) (*models.Player, error) {
	now := time.Now()
	p, ok := s.players[id]
	if !ok {
		p = models.Player{ID: id, Rating: rating, CreatedAt: now}
	}
	p.DisplayName = displayName
	p.UpdatedAt = now
	s.players[id] = p
	return &p, nil
}

func (s *state) updatePlayerRecord(p *models.Player) error {
	if _, ok := s.players[p.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now()
	s.players[p.ID] = cp
	return nil
}

func (s *state) incrementMVP(id string) error {
	p, ok := s.players[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.MVPCount++
	s.players[id] = p
	return nil
}

// queue

func (s *state) createQueueEntry(e *models.QueueEntry) error {
	for _, existing := range s.queue {
		if existing.PlayerID == e.PlayerID && existing.Status == models.QueueStatusWaiting {
			return repository.ErrAlreadyQueued
		}
	}
	s.queue[e.ID] = *e
	s.queueOrder = append(s.queueOrder, e.ID)
	return nil
}

func (s *state) getWaitingEntry(playerID string) (*models.QueueEntry, error) {
	for _, id := range s.queueOrder {
		e := s.queue[id]
		if e.PlayerID == playerID && e.Status == models.QueueStatusWaiting {
			return &e, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *state) removeQueueEntry(id string) {
	delete(s.queue, id)
	for i, qid := range s.queueOrder {
		if qid == id {
			s.queueOrder = append(s.queueOrder[:i:i], s.queueOrder[i+1:]...)
			return
		}
	}
}

func (s *state) deleteWaitingEntry(playerID string) (bool, error) {
	e, err := s.getWaitingEntry(playerID)
	if err != nil {
		return false, nil
	}
	s.removeQueueEntry(e.ID)
	return true, nil
}

func (s *state) listWaitingEntries(now time.Time) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	for _, id := range s.queueOrder {
		e := s.queue[id]
		if e.Status == models.QueueStatusWaiting && e.ExpiresAt.After(now) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (s *state) markEntriesMatched(ids []string, matchID string, at time.Time) (int, error) {
	n := 0
	for _, id := range ids {
		e, ok := s.queue[id]
		if !ok || e.Status != models.QueueStatusWaiting {
			continue
		}
		mid, t := matchID, at
		e.Status = models.QueueStatusMatched
		e.MatchID = &mid
		e.MatchedAt = &t
		s.queue[id] = e
		n++
	}
	return n, nil
}

func (s *state) expireEntries(now time.Time) (int, error) {
	n := 0
	for id, e := range s.queue {
		if e.Status == models.QueueStatusWaiting && !e.ExpiresAt.After(now) {
			e.Status = models.QueueStatusExpired
			s.queue[id] = e
			n++
		}
	}
	return n, nil
}

func (s *state) purgeEntriesForMatch(matchID string) (int, error) {
	var ids []string
	for id, e := range s.queue {
		if e.MatchID != nil && *e.MatchID == matchID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		s.removeQueueEntry(id)
	}
	return len(ids), nil
}

// matches

func (s *state) createMatch(m *models.Match) error {
	s.matches[m.ID] = copyMatch(m)
	s.matchOrder = append(s.matchOrder, m.ID)
	return nil
}

func (s *state) getMatch(id string) (*models.Match, error) {
	m, ok := s.matches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyMatch(m), nil
}

func (s *state) listMatches(statuses []models.MatchStatus) ([]*models.Match, error) {
	want := make(map[models.MatchStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*models.Match
	for _, id := range s.matchOrder {
		m := s.matches[id]
		if want[m.Status] {
			c := copyMatch(m)
			c.Rounds, c.Votes = nil, nil
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *state) findActiveMatchForPlayer(playerID string) (*models.Match, error) {
	for i := len(s.matchOrder) - 1; i >= 0; i-- {
		m := s.matches[s.matchOrder[i]]
		if m.Status.Terminal() {
			continue
		}
		if m.Player(playerID) != nil {
			return copyMatch(m), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *state) transitionMatch(id string, from []models.MatchStatus, to models.MatchStatus, p repository.MatchPatch, at time.Time) (bool, error) {
	m, ok := s.matches[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	allowed := false
	for _, st := range from {
		if m.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = at
	if p.ServerID != nil {
		m.ServerID = p.ServerID
	}
	if p.ServerAddress != nil {
		m.ServerAddress = p.ServerAddress
	}
	if p.JoinPassword != nil {
		m.JoinPassword = p.JoinPassword
	}
	if p.Map != nil {
		m.Map = p.Map
	}
	if p.TeamAScore != nil {
		m.TeamAScore = *p.TeamAScore
	}
	if p.TeamBScore != nil {
		m.TeamBScore = *p.TeamBScore
	}
	if p.Winner != nil {
		m.Winner = p.Winner
	}
	if p.CancelReason != nil {
		m.CancelReason = p.CancelReason
	}
	if p.CancelDetail != nil {
		m.CancelDetail = p.CancelDetail
	}
	if p.VetoStartedAt != nil {
		m.VetoStartedAt = p.VetoStartedAt
	}
	if p.WaitingSince != nil {
		m.WaitingSince = p.WaitingSince
	}
	if p.StartedAt != nil {
		m.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		m.CompletedAt = p.CompletedAt
	}
	return true, nil
}

func (s *state) matchPlayer(matchID, playerID string) (*models.MatchPlayer, error) {
	m, ok := s.matches[matchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	mp := m.Player(playerID)
	if mp == nil {
		return nil, repository.ErrNotFound
	}
	return mp, nil
}

func (s *state) setAccepted(matchID, playerID string) (bool, error) {
	mp, err := s.matchPlayer(matchID, playerID)
	if err != nil {
		return false, err
	}
	if mp.Accepted || s.matches[matchID].Status != models.MatchStatusReadyCheck {
		return false, nil
	}
	mp.Accepted = true
	return true, nil
}

func (s *state) setConnection(matchID, playerID string, connected bool, at time.Time, reason *string) error {
	mp, err := s.matchPlayer(matchID, playerID)
	if err != nil {
		return err
	}
	mp.Connected = connected
	if connected {
		mp.EverConnected = true
		mp.DisconnectedAt = nil
		mp.DisconnectReason = nil
		return nil
	}
	t := at
	mp.DisconnectedAt = &t
	mp.DisconnectReason = reason
	return nil
}

func (s *state) saveVote(v *models.MapVote) error {
	m, ok := s.matches[v.MatchID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range m.Votes {
		if existing.PlayerID == v.PlayerID {
			return repository.ErrDuplicateVote
		}
	}
	s.voteSeq++
	v.Seq = s.voteSeq
	m.Votes = append(m.Votes, *v)
	return nil
}

func (s *state) setPlayerRating(matchID, playerID string, ratingEnd, change int) error {
	mp, err := s.matchPlayer(matchID, playerID)
	if err != nil {
		return err
	}
	end, delta := ratingEnd, change
	mp.RatingEnd = &end
	mp.RatingChange = &delta
	return nil
}

func (s *state) addPlayerStats(matchID, playerID string, stats models.PlayerStats) error {
	mp, err := s.matchPlayer(matchID, playerID)
	if err != nil {
		return err
	}
	mp.Stats.Add(stats)
	return nil
}

func (s *state) createRound(r *models.Round) error {
	m, ok := s.matches[r.MatchID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range m.Rounds {
		if existing.Number == r.Number {
			return repository.ErrDuplicateRound
		}
	}
	cp := *r
	cp.Stats = append([]models.PlayerRoundStats(nil), r.Stats...)
	m.Rounds = append(m.Rounds, cp)
	sort.Slice(m.Rounds, func(i, j int) bool { return m.Rounds[i].Number < m.Rounds[j].Number })
	return nil
}

// servers

func (s *state) createServer(srv *models.GameServer) error {
	for _, existing := range s.servers {
		if existing.Address == srv.Address {
			return repository.ErrServerExists
		}
	}
	s.servers[srv.ID] = *srv
	s.serverOrder = append(s.serverOrder, srv.ID)
	return nil
}

func (s *state) getServer(id string) (*models.GameServer, error) {
	srv, ok := s.servers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &srv, nil
}

func (s *state) listServers() ([]*models.GameServer, error) {
	out := make([]*models.GameServer, 0, len(s.serverOrder))
	for _, id := range s.serverOrder {
		srv := s.servers[id]
		out = append(out, &srv)
	}
	return out, nil
}

func (s *state) claimServer(matchID string, at time.Time) (*models.GameServer, error) {
	for _, id := range s.serverOrder {
		srv := s.servers[id]
		if !srv.Active || srv.Status != models.ServerStatusAvailable {
			continue
		}
		mid := matchID
		srv.Status = models.ServerStatusInUse
		srv.MatchID = &mid
		srv.UpdatedAt = at
		s.servers[id] = srv
		return &srv, nil
	}
	return nil, repository.ErrNoServerAvailable
}

func (s *state) releaseServer(serverID, matchID string, at time.Time) (bool, error) {
	srv, ok := s.servers[serverID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if srv.MatchID == nil || *srv.MatchID != matchID {
		return false, nil
	}
	srv.Status = models.ServerStatusAvailable
	srv.MatchID = nil
	srv.UpdatedAt = at
	s.servers[serverID] = srv
	return true, nil
}

func (s *state) forceReleaseServer(serverID string, at time.Time) (*string, error) {
	srv, ok := s.servers[serverID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	prev := srv.MatchID
	srv.Status = models.ServerStatusAvailable
	srv.MatchID = nil
	srv.UpdatedAt = at
	s.servers[serverID] = srv
	return prev, nil
}

// bans

func (s *state) createBan(b *models.Ban) error {
	s.bans[b.ID] = *b
	s.banOrder = append(s.banOrder, b.ID)
	return nil
}

func (s *state) getBan(id string) (*models.Ban, error) {
	b, ok := s.bans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *state) listActiveBans(playerID string) ([]models.Ban, error) {
	var out []models.Ban
	for _, id := range s.banOrder {
		b := s.bans[id]
		if b.PlayerID == playerID && b.Active {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *state) countBans(playerID string, reason models.BanReason) (int, error) {
	n := 0
	for _, b := range s.bans {
		if b.PlayerID == playerID && b.Reason == reason {
			n++
		}
	}
	return n, nil
}

func (s *state) deactivateBan(id string, revokedAt *time.Time) (bool, error) {
	b, ok := s.bans[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !b.Active {
		return false, nil
	}
	b.Active = false
	b.RevokedAt = revokedAt
	s.bans[id] = b
	return true, nil
}
