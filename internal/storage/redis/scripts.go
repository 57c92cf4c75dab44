package redis

import goredis "github.com/redis/go-redis/v9"

// Коды ответа скриптов.
const (
	statusNotFound int64 = 0
	statusExpired  int64 = 1
	statusOK       int64 = 2
	statusConflict int64 = 3
)

// Общие функции скриптов. prefix передаётся первым аргументом.
const luaHelpers = `
local prefix = ARGV[1]

local function drop(hash)
  local key = prefix .. "s:" .. hash
  local sid = redis.call("HGET", key, "id")
  redis.call("ZREM", prefix .. "exp", hash)
  if not sid then
    return 0
  end
  local uid = redis.call("HGET", key, "uid")
  redis.call("DEL", key, prefix .. "id:" .. sid)
  redis.call("ZREM", prefix .. "u:" .. uid, hash)
  return 1
end

local function taken(hash, sid)
  return redis.call("EXISTS", prefix .. "s:" .. hash) == 1 or redis.call("EXISTS", prefix .. "id:" .. sid) == 1
end

-- a: hash, sid, uid, exp, ip, ua, ca, lu, keep_until
local function insert(a)
  local key = prefix .. "s:" .. a[1]
  local idk = prefix .. "id:" .. a[2]
  redis.call("HSET", key, "id", a[2], "uid", a[3], "exp", a[4], "ip", a[5], "ua", a[6], "ca", a[7], "lu", a[8])
  redis.call("PEXPIREAT", key, a[9])
  redis.call("SET", idk, a[1])
  redis.call("PEXPIREAT", idk, a[9])
  redis.call("ZADD", prefix .. "u:" .. a[3], a[8], a[1])
  redis.call("ZADD", prefix .. "exp", a[4], a[1])
end
`

// ARGV: prefix, hash, sid, uid, exp, ip, ua, ca, lu, keep_until.
var saveLua = goredis.NewScript(luaHelpers + `
if taken(ARGV[2], ARGV[3]) then
  return 3
end
insert({ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7], ARGV[8], ARGV[9], ARGV[10]})
return 2
`)

// ARGV: prefix, old_hash, uid, now, затем поля новой записи как в saveLua.
var rotateLua = goredis.NewScript(luaHelpers + `
local key = prefix .. "s:" .. ARGV[2]
local uid = redis.call("HGET", key, "uid")
if not uid or uid ~= ARGV[3] then
  return {0}
end
if taken(ARGV[5], ARGV[6]) then
  return {3}
end
local old = redis.call("HGETALL", key)
local exp = tonumber(redis.call("HGET", key, "exp"))
drop(ARGV[2])
if exp <= tonumber(ARGV[4]) then
  return {1, old}
end
insert({ARGV[5], ARGV[6], ARGV[7], ARGV[8], ARGV[9], ARGV[10], ARGV[11], ARGV[12], ARGV[13]})
return {2, old}
`)

// ARGV: prefix, hash.
var deleteByHashLua = goredis.NewScript(luaHelpers + `
return drop(ARGV[2])
`)

// ARGV: prefix, uid, sid.
var deleteByIDLua = goredis.NewScript(luaHelpers + `
local hash = redis.call("GET", prefix .. "id:" .. ARGV[3])
if not hash then
  return 0
end
if redis.call("HGET", prefix .. "s:" .. hash, "uid") ~= ARGV[2] then
  return 0
end
return drop(hash)
`)

// ARGV: prefix, uid.
var deleteByUserLua = goredis.NewScript(luaHelpers + `
local ukey = prefix .. "u:" .. ARGV[2]
local hashes = redis.call("ZRANGE", ukey, 0, -1)
local n = 0
for _, h in ipairs(hashes) do
  n = n + drop(h)
end
redis.call("DEL", ukey)
return n
`)

// ARGV: prefix, now.
var deleteExpiredLua = goredis.NewScript(luaHelpers + `
local hashes = redis.call("ZRANGEBYSCORE", prefix .. "exp", "-inf", ARGV[2])
local n = 0
for _, h in ipairs(hashes) do
  n = n + drop(h)
end
return n
`)
