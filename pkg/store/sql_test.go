package store

import (
	"testing"
	tm "time"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "job.lock.", escapeLike("job.lock."))
	assert.Equal(t, "100!%!_done!!", escapeLike("100%_done!"))
}

func TestSQLObjectInfo(t *testing.T) {
	modified := tm.Date(2024, 3, 1, 12, 0, 0, 0, tm.Local)
	o := sqlObject{Bucket: "farm", ObjectKey: "k", Body: []byte("abc"), ModifiedAt: modified}

	info := o.info()
	assert.Equal(t, "k", info.Key)
	assert.Equal(t, int64(3), info.Size)
	assert.True(t, modified.Equal(info.LastModified))
	assert.Equal(t, "objmutex_objects", o.TableName())
}

func TestKeyCollation(t *testing.T) {
	opts, expr := keyCollation("mysql")
	assert.Contains(t, opts, "utf8mb4_bin")
	assert.Equal(t, "object_key", expr)

	opts, expr = keyCollation("postgres")
	assert.Empty(t, opts)
	assert.Equal(t, `object_key COLLATE "C"`, expr)

	opts, expr = keyCollation("sqlite")
	assert.Empty(t, opts)
	assert.Equal(t, "object_key", expr)
}
