package store

import "time"

func nowMilli() int64 { return time.Now().UnixMilli() }

func nowTime() time.Time { return time.Now() }
