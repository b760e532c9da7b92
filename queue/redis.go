package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout, per spec §6. No key outside this list is ever
// touched by Redis.
//
//	{prefix}:job:{JobId}      - JSON-encoded JobEntry, one key per job
//	{prefix}:priority_queue   - sorted set of ready JobIds, score = JobEntry.Score()
//	{prefix}:delayed          - sorted set of delayed JobIds, score = RunAt (unix ms)
//	{prefix}:pending          - set of JobIds in Pending
//	{prefix}:processing       - set of JobIds in Processing
//	{prefix}:completed        - set of JobIds in Completed
//	{prefix}:failed           - set of JobIds in JobFailed (no transition assigns JobFailed, so it stays empty)
//	{prefix}:dead             - set of JobIds in Dead
type redisKeys struct {
	prefix string
}

func (k redisKeys) job(id JobId) string   { return fmt.Sprintf("%s:job:%s", k.prefix, id) }
func (k redisKeys) priority() string      { return k.prefix + ":priority_queue" }
func (k redisKeys) delayed() string       { return k.prefix + ":delayed" }
func (k redisKeys) stateSet(s JobState) string {
	switch s {
	case Pending:
		return k.prefix + ":pending"
	case Processing:
		return k.prefix + ":processing"
	case Completed:
		return k.prefix + ":completed"
	case JobFailed:
		return k.prefix + ":failed"
	case Dead:
		return k.prefix + ":dead"
	default:
		return k.prefix + ":unknown"
	}
}

// Redis is a distributed Backend backed by go-redis. Enqueue, Dequeue,
// Complete and RequeueJob move a job between the index sets with one
// Lua script each; Dequeue, Complete and RequeueJob read or write the
// job body with separate commands outside that script. ProcessDelayed
// is not a script: it promotes job by job with ZREM followed by ZADD.
type Redis struct {
	client *redis.Client
	keys   redisKeys
	ctx    context.Context

	enqueueScript  *redis.Script
	dequeueScript  *redis.Script
	completeScript *redis.Script
	requeueScript  *redis.Script
}

var _ Backend = (*Redis)(nil)

// NewRedis creates a Redis backend. keyPrefix namespaces all keys this
// backend touches (e.g. "myapp:queue").
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	r := &Redis{
		client: client,
		keys:   redisKeys{prefix: keyPrefix},
		ctx:    context.Background(),
	}
	r.enqueueScript = redis.NewScript(enqueueLua)
	r.dequeueScript = redis.NewScript(dequeueLua)
	r.completeScript = redis.NewScript(completeLua)
	r.requeueScript = redis.NewScript(requeueLua)
	return r
}

// WithContext returns a shallow copy of r that issues commands with
// ctx instead of context.Background().
func (r *Redis) WithContext(ctx context.Context) *Redis {
	cp := *r
	cp.ctx = ctx
	return &cp
}

func (r *Redis) encode(entry JobEntry) (string, error) {
	b, err := json.Marshal(entry)
	if err != nil {
		return "", &BackendError{Op: "encode", JobId: entry.Id, Cause: err}
	}
	return string(b), nil
}

func (r *Redis) decode(raw string) (JobEntry, error) {
	var entry JobEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return JobEntry{}, &BackendError{Op: "decode", Cause: err}
	}
	return entry, nil
}

// enqueueLua stores the job blob, then places it in priority_queue (if
// due now) or delayed (if scheduled for the future), and adds it to
// the pending set. KEYS: 1=job, 2=priority_queue, 3=delayed, 4=pending
// ARGV: 1=job_id, 2=job_json, 3=score, 4=run_at_ms, 5=now_ms
const enqueueLua = `
redis.call('SET', KEYS[1], ARGV[2])
redis.call('SADD', KEYS[4], ARGV[1])
if tonumber(ARGV[4]) <= tonumber(ARGV[5]) then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
else
	redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
end
return 1
`

// Enqueue stores entry and indexes it per its due time.
func (r *Redis) Enqueue(entry JobEntry) (JobId, error) {
	entry.State = Pending
	entry.UpdatedAt = time.Now()
	blob, err := r.encode(entry)
	if err != nil {
		return "", err
	}

	now := time.Now().UnixMilli()
	_, err = r.enqueueScript.Run(r.ctx, r.client, []string{
		r.keys.job(entry.Id), r.keys.priority(), r.keys.delayed(), r.keys.stateSet(Pending),
	}, string(entry.Id), blob, entry.Score(), entry.RunAt.UnixMilli(), now).Result()
	if err != nil {
		return "", &BackendError{Op: "enqueue", JobId: entry.Id, Cause: err}
	}
	return entry.Id, nil
}

// dequeueLua pops the highest-scoring member of priority_queue, moves
// it from pending to processing, and returns its id (the job blob is
// fetched and rewritten by the caller since Lua JSON round-tripping of
// Go-encoded structs is fragile). KEYS: 1=priority_queue, 2=pending,
// 3=processing
const dequeueLua = `
local top = redis.call('ZREVRANGE', KEYS[1], 0, 0)
if #top == 0 then
	return nil
end
local id = top[1]
redis.call('ZREM', KEYS[1], id)
redis.call('SREM', KEYS[2], id)
redis.call('SADD', KEYS[3], id)
return id
`

// Dequeue pops the highest-priority ready job and marks it Processing.
func (r *Redis) Dequeue() (JobEntry, bool, error) {
	res, err := r.dequeueScript.Run(r.ctx, r.client, []string{
		r.keys.priority(), r.keys.stateSet(Pending), r.keys.stateSet(Processing),
	}).Result()
	if err == redis.Nil || res == nil {
		return JobEntry{}, false, nil
	}
	if err != nil {
		return JobEntry{}, false, &BackendError{Op: "dequeue", Cause: err}
	}

	id := JobId(res.(string))
	raw, err := r.client.Get(r.ctx, r.keys.job(id)).Result()
	if err != nil {
		return JobEntry{}, false, &BackendError{Op: "dequeue", JobId: id, Cause: err}
	}
	entry, err := r.decode(raw)
	if err != nil {
		return JobEntry{}, false, err
	}
	entry.State = Processing
	entry.UpdatedAt = time.Now()

	blob, err := r.encode(entry)
	if err != nil {
		return JobEntry{}, false, err
	}
	if err := r.client.Set(r.ctx, r.keys.job(id), blob, 0).Err(); err != nil {
		return JobEntry{}, false, &BackendError{Op: "dequeue", JobId: id, Cause: err}
	}
	return entry, true, nil
}

// completeLua moves a job from processing to either completed or back
// into pending/delayed (retry) or dead, based on ARGV[2] (outcome).
// KEYS: 1=processing, 2=completed, 3=pending, 4=delayed, 5=dead
// ARGV: 1=job_id, 2=outcome ("done"|"retry"|"dead"), 3=score, 4=run_at_ms
const completeLua = `
redis.call('SREM', KEYS[1], ARGV[1])
if ARGV[2] == 'done' then
	redis.call('SADD', KEYS[2], ARGV[1])
elseif ARGV[2] == 'retry' then
	redis.call('SADD', KEYS[3], ARGV[1])
	redis.call('ZADD', KEYS[4], ARGV[4], ARGV[1])
else
	redis.call('SADD', KEYS[5], ARGV[1])
end
return 1
`

// Complete records result against id's stored JobEntry and transitions
// it per the job's RetryStrategy on failure.
func (r *Redis) Complete(id JobId, result Result) error {
	raw, err := r.client.Get(r.ctx, r.keys.job(id)).Result()
	if err == redis.Nil {
		return &BackendError{Op: "complete", JobId: id, Cause: ErrJobNotFound}
	}
	if err != nil {
		return &BackendError{Op: "complete", JobId: id, Cause: err}
	}
	entry, err := r.decode(raw)
	if err != nil {
		return err
	}

	now := time.Now()
	entry.UpdatedAt = now

	outcome := "done"
	if result.Success {
		entry.State = Completed
		entry.CompletedAt = &now
		entry.ErrorMessage = ""
	} else {
		if result.Err != nil {
			entry.ErrorMessage = result.Err.Error()
		}
		strategy := entry.Retry
		if strategy == nil {
			strategy = FixedRetry{Delay: time.Second, MaxAttempts: entry.MaxRetries}
		}
		attemptIndex := entry.Attempts
		entry.Attempts++

		delay, retry := strategy.NextDelay(attemptIndex)
		if retry {
			entry.RunAt = now.Add(delay)
			entry.State = Pending
			outcome = "retry"
		} else {
			entry.State = Dead
			outcome = "dead"
		}
	}

	blob, err := r.encode(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(r.ctx, r.keys.job(id), blob, 0).Err(); err != nil {
		return &BackendError{Op: "complete", JobId: id, Cause: err}
	}

	_, err = r.completeScript.Run(r.ctx, r.client, []string{
		r.keys.stateSet(Processing), r.keys.stateSet(Completed), r.keys.stateSet(Pending),
		r.keys.delayed(), r.keys.stateSet(Dead),
	}, string(id), outcome, entry.Score(), entry.RunAt.UnixMilli()).Result()
	if err != nil {
		return &BackendError{Op: "complete", JobId: id, Cause: err}
	}
	return nil
}

// ProcessDelayed promotes every delayed job whose RunAt has passed. A
// job is only ZADDed into priority_queue once its ZREM from delayed
// reports success, so no job is ever counted in both sets at once;
// each candidate's score is recomputed from its stored JobEntry rather
// than trusted from the delayed set, so priority ordering survives the
// promotion.
func (r *Redis) ProcessDelayed() (int, error) {
	nowMs := time.Now().UnixMilli()
	ids, err := r.client.ZRangeByScore(r.ctx, r.keys.delayed(), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", nowMs),
	}).Result()
	if err != nil {
		return 0, &BackendError{Op: "process_delayed", Cause: err}
	}

	promoted := 0
	for _, idStr := range ids {
		id := JobId(idStr)
		removed, err := r.client.ZRem(r.ctx, r.keys.delayed(), idStr).Result()
		if err != nil || removed == 0 {
			continue
		}

		raw, err := r.client.Get(r.ctx, r.keys.job(id)).Result()
		if err != nil {
			continue
		}
		entry, err := r.decode(raw)
		if err != nil {
			continue
		}
		if err := r.client.ZAdd(r.ctx, r.keys.priority(), redis.Z{Score: entry.Score(), Member: idStr}).Err(); err != nil {
			continue
		}
		promoted++
	}
	return promoted, nil
}

// requeueLua moves a job out of dead back into pending.
// KEYS: 1=dead, 2=pending. ARGV: 1=job_id
const requeueLua = `
local removed = redis.call('SREM', KEYS[1], ARGV[1])
if removed == 0 then
	return 0
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`

// RequeueJob transitions a Dead job back to Pending with a fresh entry
// body, resetting Attempts.
func (r *Redis) RequeueJob(id JobId, entry JobEntry) (bool, error) {
	entry.Id = id
	entry.Attempts = 0
	entry.State = Pending
	entry.UpdatedAt = time.Now()
	entry.CompletedAt = nil

	blob, err := r.encode(entry)
	if err != nil {
		return false, err
	}

	res, err := r.requeueScript.Run(r.ctx, r.client, []string{
		r.keys.stateSet(Dead), r.keys.stateSet(Pending),
	}, string(id)).Result()
	if err != nil {
		return false, &BackendError{Op: "requeue", JobId: id, Cause: err}
	}
	moved := res.(int64) == 1
	if !moved {
		return false, nil
	}
	if err := r.client.Set(r.ctx, r.keys.job(id), blob, 0).Err(); err != nil {
		return false, &BackendError{Op: "requeue", JobId: id, Cause: err}
	}
	if err := r.client.ZAdd(r.ctx, r.keys.priority(), redis.Z{Score: entry.Score(), Member: string(id)}).Err(); err != nil {
		return false, &BackendError{Op: "requeue", JobId: id, Cause: err}
	}
	return true, nil
}

// GetJob fetches a single job by id.
func (r *Redis) GetJob(id JobId) (JobEntry, bool, error) {
	raw, err := r.client.Get(r.ctx, r.keys.job(id)).Result()
	if err == redis.Nil {
		return JobEntry{}, false, nil
	}
	if err != nil {
		return JobEntry{}, false, &BackendError{Op: "get_job", JobId: id, Cause: err}
	}
	entry, err := r.decode(raw)
	if err != nil {
		return JobEntry{}, false, err
	}
	return entry, true, nil
}

// GetJobsByState scans the set for state and fetches up to limit job
// bodies.
func (r *Redis) GetJobsByState(state JobState, limit int) ([]JobEntry, error) {
	ids, err := r.client.SMembers(r.ctx, r.keys.stateSet(state)).Result()
	if err != nil {
		return nil, &BackendError{Op: "get_jobs_by_state", Cause: err}
	}

	out := make([]JobEntry, 0, len(ids))
	for _, idStr := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		raw, err := r.client.Get(r.ctx, r.keys.job(JobId(idStr))).Result()
		if err != nil {
			continue
		}
		entry, err := r.decode(raw)
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// RemoveJob deletes a job and every index entry referencing it.
func (r *Redis) RemoveJob(id JobId) (bool, error) {
	existed, err := r.client.Exists(r.ctx, r.keys.job(id)).Result()
	if err != nil {
		return false, &BackendError{Op: "remove_job", JobId: id, Cause: err}
	}
	if existed == 0 {
		return false, nil
	}

	pipe := r.client.TxPipeline()
	pipe.Del(r.ctx, r.keys.job(id))
	pipe.ZRem(r.ctx, r.keys.priority(), string(id))
	pipe.ZRem(r.ctx, r.keys.delayed(), string(id))
	for _, s := range []JobState{Pending, Processing, Completed, JobFailed, Dead} {
		pipe.SRem(r.ctx, r.keys.stateSet(s), string(id))
	}
	if _, err := pipe.Exec(r.ctx); err != nil {
		return false, &BackendError{Op: "remove_job", JobId: id, Cause: err}
	}
	return true, nil
}

// ClearJobsByState removes every job in state.
func (r *Redis) ClearJobsByState(state JobState) (int, error) {
	ids, err := r.client.SMembers(r.ctx, r.keys.stateSet(state)).Result()
	if err != nil {
		return 0, &BackendError{Op: "clear_jobs_by_state", Cause: err}
	}
	count := 0
	for _, idStr := range ids {
		ok, err := r.RemoveJob(JobId(idStr))
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// Clear removes every key this backend owns.
func (r *Redis) Clear() error {
	for _, state := range []JobState{Pending, Processing, Completed, JobFailed, Dead} {
		if _, err := r.ClearJobsByState(state); err != nil {
			return err
		}
	}
	pipe := r.client.TxPipeline()
	pipe.Del(r.ctx, r.keys.priority())
	pipe.Del(r.ctx, r.keys.delayed())
	if _, err := pipe.Exec(r.ctx); err != nil {
		return &BackendError{Op: "clear", Cause: err}
	}
	return nil
}

// Stats tallies job counts per state directly from the state sets.
func (r *Redis) Stats() (QueueStats, error) {
	var stats QueueStats
	counts := map[JobState]*int{
		Pending:    &stats.Pending,
		Processing: &stats.Processing,
		Completed:  &stats.Completed,
		JobFailed:  &stats.Failed,
		Dead:       &stats.Dead,
	}
	for state, dst := range counts {
		n, err := r.client.SCard(r.ctx, r.keys.stateSet(state)).Result()
		if err != nil {
			return stats, &BackendError{Op: "stats", Cause: err}
		}
		*dst = int(n)
		stats.Total += int(n)
	}
	return stats, nil
}
