package redis

const (
	// ensureAppScript returns the id of an app, allocating one on first use
	ensureAppScript = `
local apps_key = KEYS[1]     -- apptime:apps (name -> id)
local ids_key = KEYS[2]      -- apptime:apps:ids (id -> name)
local seq_key = KEYS[3]      -- apptime:apps:seq

local name = ARGV[1]

local id = redis.call('HGET', apps_key, name)
if id then
  return tonumber(id)
end

id = redis.call('INCR', seq_key)
redis.call('HSET', apps_key, name, tostring(id))
redis.call('HSET', ids_key, tostring(id), name)

return id
`

	// appendSessionScript atomically appends a session and bumps the per-app
	// total. Returns nil when the app id is not registered.
	appendSessionScript = `
local ids_key = KEYS[1]      -- apptime:apps:ids
local log_key = KEYS[2]      -- apptime:sessions
local totals_key = KEYS[3]   -- apptime:totals (id -> seconds)

local app_id = ARGV[1]
local record = ARGV[2]
local seconds = ARGV[3]

local name = redis.call('HGET', ids_key, app_id)
if not name then
  return false
end

redis.call('RPUSH', log_key, record)
redis.call('HINCRBY', totals_key, app_id, seconds)

return name
`
)
