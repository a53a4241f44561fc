package sqlinline

const QSelectProjectState = `--sql 9db79bb5-e9b8-4410-9edc-9df8d0e02766
select doc
from project_states
where id = $1;
`

const QUpsertProjectState = `--sql 205a0e88-d8ed-44db-bd3a-e9ed52ffb492
insert into project_states (id, doc, updated_at)
values ($1, $2, now())
on conflict (id) do update
set doc = excluded.doc, updated_at = now();
`

const QDeleteProjectState = `--sql c5598ee8-1db6-4c6d-bb91-d5ac27c9c720
delete from project_states
where id = $1;
`

const QListProjectStates = `--sql a6fdc3b3-26cb-48f3-939b-37d744b5958d
select id, doc->>'title', updated_at
from project_states
order by updated_at desc
limit $1;
`
