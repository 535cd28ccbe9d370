package storemysql

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lattice-mc/netsync/engine/common"
	"github.com/lattice-mc/netsync/engine/nslog"
	"github.com/lattice-mc/netsync/engine/store/storecommon"
	"github.com/pkg/errors"
)

var schema = []string{
	"CREATE TABLE IF NOT EXISTS `player_ranks`(`uuid` CHAR(36) NOT NULL PRIMARY KEY, `rank_name` VARCHAR(16) NOT NULL)",
	"CREATE TABLE IF NOT EXISTS `player_mutes`(`uuid` CHAR(36) NOT NULL PRIMARY KEY, `until_ms` BIGINT NOT NULL)",
	"CREATE TABLE IF NOT EXISTS `audit_log`(`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, `target` CHAR(36) NOT NULL, `actor` CHAR(36) NOT NULL, `category` VARCHAR(32) NOT NULL, `reason` TEXT NOT NULL, `at_ms` BIGINT NOT NULL, INDEX(`target`))",
	"CREATE TABLE IF NOT EXISTS `friend_requests`(`id` CHAR(36) NOT NULL PRIMARY KEY, `sender` CHAR(36) NOT NULL, `recipient` CHAR(36) NOT NULL, `state` VARCHAR(16) NOT NULL, `created_ms` BIGINT NOT NULL, `origin` VARCHAR(64) NOT NULL)",
	"CREATE TABLE IF NOT EXISTS `friendships`(`player` CHAR(36) NOT NULL, `friend` CHAR(36) NOT NULL, PRIMARY KEY(`player`, `friend`))",
	"CREATE TABLE IF NOT EXISTS `player_preferences`(`uuid` CHAR(36) NOT NULL PRIMARY KEY, `data` BLOB NOT NULL)",
}

type mysqlBackend struct {
	db *sql.DB
}

// OpenMySQL opens mysql as durable store and creates missing tables
func OpenMySQL(url string) (storecommon.Backend, error) {
	db, err := sql.Open("mysql", url)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create table")
		}
	}
	nslog.Infof("storemysql: connected")
	return &mysqlBackend{db: db}, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}

func (b *mysqlBackend) GetRank(id uuid.UUID) (common.Rank, bool, error) {
	var name string
	err := b.db.QueryRow("SELECT `rank_name` FROM `player_ranks` WHERE `uuid`=?", id.String()).Scan(&name)
	if err == sql.ErrNoRows {
		return common.RankDefault, false, nil
	} else if err != nil {
		return common.RankDefault, false, err
	}
	rank, err := common.ParseRank(name)
	if err != nil {
		return common.RankDefault, false, err
	}
	return rank, true, nil
}

func (b *mysqlBackend) SetRank(id uuid.UUID, rank common.Rank) error {
	_, err := b.db.Exec("INSERT INTO `player_ranks`(`uuid`, `rank_name`) VALUES(?, ?) ON DUPLICATE KEY UPDATE `rank_name`=VALUES(`rank_name`)",
		id.String(), rank.String())
	return err
}

func (b *mysqlBackend) IsMuted(id uuid.UUID, now time.Time) (bool, error) {
	var untilMs int64
	err := b.db.QueryRow("SELECT `until_ms` FROM `player_mutes` WHERE `uuid`=?", id.String()).Scan(&untilMs)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return untilMs == 0 || fromMillis(untilMs).After(now), nil
}

func (b *mysqlBackend) MutePlayer(id uuid.UUID, until time.Time) error {
	_, err := b.db.Exec("INSERT INTO `player_mutes`(`uuid`, `until_ms`) VALUES(?, ?) ON DUPLICATE KEY UPDATE `until_ms`=VALUES(`until_ms`)",
		id.String(), toMillis(until))
	return err
}

func (b *mysqlBackend) UnmutePlayer(id uuid.UUID) error {
	_, err := b.db.Exec("DELETE FROM `player_mutes` WHERE `uuid`=?", id.String())
	return err
}

func (b *mysqlBackend) RecordAuditEntry(entry storecommon.AuditEntry) error {
	_, err := b.db.Exec("INSERT INTO `audit_log`(`target`, `actor`, `category`, `reason`, `at_ms`) VALUES(?, ?, ?, ?, ?)",
		entry.Target.String(), entry.Actor.String(), entry.Category, entry.Reason, toMillis(entry.At))
	return err
}

func (b *mysqlBackend) SaveFriendRequest(req storecommon.FriendRequestRecord) error {
	_, err := b.db.Exec("INSERT INTO `friend_requests`(`id`, `sender`, `recipient`, `state`, `created_ms`, `origin`) VALUES(?, ?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE `state`=VALUES(`state`)",
		req.ID.String(), req.Sender.String(), req.Recipient.String(), req.State, toMillis(req.CreatedAt), req.Origin)
	return err
}

func (b *mysqlBackend) LoadFriends(id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := b.db.Query("SELECT `friend` FROM `friendships` WHERE `player`=? ORDER BY `friend`", id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []uuid.UUID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		friend, err := uuid.Parse(s)
		if err != nil {
			nslog.Warnf("storemysql: bad friend id %q of %s", s, id)
			continue
		}
		friends = append(friends, friend)
	}
	return friends, rows.Err()
}

func (b *mysqlBackend) AddFriendship(a, c uuid.UUID) error {
	_, err := b.db.Exec("INSERT IGNORE INTO `friendships`(`player`, `friend`) VALUES(?, ?), (?, ?)",
		a.String(), c.String(), c.String(), a.String())
	return err
}

func (b *mysqlBackend) RemoveFriendship(a, c uuid.UUID) error {
	_, err := b.db.Exec("DELETE FROM `friendships` WHERE (`player`=? AND `friend`=?) OR (`player`=? AND `friend`=?)",
		a.String(), c.String(), c.String(), a.String())
	return err
}

func (b *mysqlBackend) LoadPreferences(id uuid.UUID) ([]byte, error) {
	var data []byte
	err := b.db.QueryRow("SELECT `data` FROM `player_preferences` WHERE `uuid`=?", id.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return data, err
}

func (b *mysqlBackend) SavePreferences(id uuid.UUID, blob []byte) error {
	_, err := b.db.Exec("INSERT INTO `player_preferences`(`uuid`, `data`) VALUES(?, ?) ON DUPLICATE KEY UPDATE `data`=VALUES(`data`)",
		id.String(), blob)
	return err
}

func (b *mysqlBackend) Close() error {
	return b.db.Close()
}
