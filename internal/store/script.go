package store

import "github.com/go-redis/redis/v8"

// casScript implements the store's only multi-writer coordination
// primitive: set a hash field to newVal iff its current value stringly
// equals expected. A missing field reads back as Lua's boolean false,
// which is normalised to the string "false" so absence and the literal
// string "false" are indistinguishable on both sides of the compare - this
// is intentional, see the base spec's CAS contract.
var casScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current == false then
  current = "false"
end
if current == ARGV[2] then
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
  return 1
end
return 0
`)
