package sync

import "testing"

func TestFingerprintImageOrderInvariance(t *testing.T) {
	a := admissibleRecord()
	a.Images = []string{"http://img/1.jpg", "http://img/2.jpg", "http://img/3.jpg"}

	b := admissibleRecord()
	b.Images = []string{"http://img/3.jpg", "http://img/1.jpg", "http://img/2.jpg"}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("permuting image urls must not change the fingerprint")
	}
}

func TestFingerprintDetectsChange(t *testing.T) {
	base := Fingerprint(admissibleRecord())

	rec := admissibleRecord()
	rec.Prices.List = 5001
	if Fingerprint(rec) == base {
		t.Fatal("price change must change the fingerprint")
	}

	rec = admissibleRecord()
	rec.Images = append(rec.Images, "http://img/3.jpg")
	if Fingerprint(rec) == base {
		t.Fatal("added image must change the fingerprint")
	}

	rec = admissibleRecord()
	rec.Offers[0].Status = "reserved"
	if Fingerprint(rec) == base {
		t.Fatal("offer status change must change the fingerprint")
	}

	// 与展示无关的字段不参与指纹
	rec = admissibleRecord()
	rec.Offers[0].Branch = "Otro"
	if Fingerprint(rec) != base {
		t.Fatal("branch name must not affect the fingerprint")
	}
}

func TestFingerprintStable(t *testing.T) {
	if Fingerprint(nil) != "" {
		t.Fatal("nil record should produce empty fingerprint")
	}
	rec := admissibleRecord()
	if Fingerprint(rec) != Fingerprint(rec) {
		t.Fatal("fingerprint must be deterministic")
	}
}
