package postgres

import "testing"

func TestDSNPrefersConnString(t *testing.T) {
	cfg := &Config{ConnString: "postgres://explicit"}
	if got := dsn(cfg); got != "postgres://explicit" {
		t.Fatalf("unexpected dsn: %s", got)
	}
}

func TestDSNSynthesizedFromFields(t *testing.T) {
	cfg := &Config{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "tasquencer"}
	got := dsn(cfg)
	want := "host=db port=5432 user=u password=p dbname=tasquencer sslmode=disable"
	if got != want {
		t.Fatalf("unexpected dsn: %s", got)
	}
}

func TestDSNHonorsExplicitSSLMode(t *testing.T) {
	cfg := &Config{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "tasquencer", SSLMode: "require"}
	got := dsn(cfg)
	want := "host=db port=5432 user=u password=p dbname=tasquencer sslmode=require"
	if got != want {
		t.Fatalf("unexpected dsn: %s", got)
	}
}
